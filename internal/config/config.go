package config

import (
	"math"
	"os"
	"strconv"

	"siterisk/domain/metrics"
	"siterisk/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Data     DataConfig
	Risk     RiskConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds database connection settings. URL may be empty, in
// which case the run store falls back to the in-memory implementation.
type DatabaseConfig struct {
	URL string
}

// DataConfig holds data ingestion settings
type DataConfig struct {
	IssueLogFile string
}

// RiskConfig carries every tunable business threshold in the scoring and
// mining core. No threshold is defaulted silently at a use site: Validate
// rejects a missing or inconsistent value before scoring begins.
type RiskConfig struct {
	Weights     CompositeWeights  `json:"weights"`
	CutPoints   PriorityCutPoints `json:"cut_points"`
	Safety      SafetyConfig      `json:"safety"`
	DataQuality DataQualityConfig `json:"data_quality"`
	Performance PerformanceConfig `json:"performance"`
	RootCause   RootCauseConfig   `json:"root_cause"`
	Cohort      CohortConfig      `json:"cohort"`
	Actions     ActionConfig      `json:"actions"`
}

// CompositeWeights are the fixed domain weights; they must sum to 1.0.
type CompositeWeights struct {
	Safety      float64 `json:"safety"`
	DataQuality float64 `json:"data_quality"`
	Performance float64 `json:"performance"`
}

// PriorityCutPoints map an overall score to a priority tier. Scores at or
// above Critical are CRITICAL, at or above High are HIGH, at or above Medium
// are MEDIUM, anything below is LOW. Must be strictly descending.
type PriorityCutPoints struct {
	Critical float64 `json:"critical"`
	High     float64 `json:"high"`
	Medium   float64 `json:"medium"`
}

// SafetyConfig tunes the safety scorer. The score curve is
// 1 - exp(-SaturationK * sae_pending), a monotonic saturating function
// bounded to [0,1].
type SafetyConfig struct {
	SaturationK float64 `json:"saturation_k"`
}

// DataQualityConfig tunes the DQI composite. The raw DQI is the weighted
// log-scaled sum of the DQ category counts; the normalized score divides by
// the portfolio-calibrated Denominator and clamps to [0,1]. DominanceShare
// is the weighted-total share above which a single category flags
// "single issue type dominates".
type DataQualityConfig struct {
	CategoryWeights map[metrics.IssueCategory]float64 `json:"category_weights"`
	Denominator     float64                           `json:"denominator"`
	DominanceShare  float64                           `json:"dominance_share"`
	LevelCutPoints  PriorityCutPoints                 `json:"level_cut_points"`
}

// PerformanceConfig tunes the performance scorer, which compares a site's
// DQI against the portfolio average. LowFloor is the multiple below which a
// site reports "within expected parameters".
type PerformanceConfig struct {
	CriticalMultiple float64 `json:"critical_multiple"`
	HighMultiple     float64 `json:"high_multiple"`
	LowFloor         float64 `json:"low_floor"`
}

// RootCauseConfig tunes the root-cause miner.
type RootCauseConfig struct {
	PrevalenceFloor    float64                `json:"prevalence_floor"`     // min fraction of sites for candidacy
	MergeLiftThreshold float64                `json:"merge_lift_threshold"` // lift above which candidates merge
	SeverityBands      RootCauseSeverityBands `json:"severity_bands"`
	GeoDominanceRatio  float64                `json:"geo_dominance_ratio"` // country dominant-issue ratio trigger
	GeoMaxSites        int                    `json:"geo_max_sites"`       // "small" country site-count ceiling
}

// RootCauseSeverityBands map affected-site share to severity.
type RootCauseSeverityBands struct {
	Critical float64 `json:"critical"`
	High     float64 `json:"high"`
	Medium   float64 `json:"medium"`
}

// CohortConfig tunes the geographic/cohort outlier detector. MinCohortSites
// is the minimum sample size guard: cohorts below it are suppressed from
// outlier output rather than flagged on small-N noise.
type CohortConfig struct {
	MinCohortSites     int          `json:"min_cohort_sites"`
	CriticalMultiple   float64      `json:"critical_multiple"`
	HighMultiple       float64      `json:"high_multiple"`
	DominantCountFloor int          `json:"dominant_count_floor"` // min absolute cohort count for a dominant issue
	SizeBuckets        []SizeBucket `json:"size_buckets"`
}

// SizeBucket is one explicit, ordered, non-overlapping subject-count range.
// MaxSubjects < 0 means unbounded.
type SizeBucket struct {
	Name        string `json:"name"`
	MinSubjects int    `json:"min_subjects"`
	MaxSubjects int    `json:"max_subjects"`
}

// Contains reports whether a subject count falls in the bucket.
func (b SizeBucket) Contains(subjects int) bool {
	if subjects < b.MinSubjects {
		return false
	}
	return b.MaxSubjects < 0 || subjects <= b.MaxSubjects
}

// ActionConfig holds the category action templates and the fixed process
// scaffold appended for CRITICAL/HIGH sites. Both are configuration, not
// business logic baked into the scorer.
type ActionConfig struct {
	Templates map[metrics.IssueCategory]ActionTemplate `json:"templates"`
	Scaffold  []string                                 `json:"scaffold"`
}

// ActionTemplate is the fixed action text and severity rank for one
// triggering category.
type ActionTemplate struct {
	Text         string `json:"text"`
	SeverityRank int    `json:"severity_rank"`
}

// Severity ranks for action ordering.
const (
	RankSAE            = 0
	RankCoding         = 1
	RankVisitCRF       = 2
	RankReconciliation = 3
	RankScaffold       = 9
)

// Default returns the calibrated default configuration. Every value here is
// tunable; historical recalibration replaces these defaults, code never
// does.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{URL: ""},
		Data:     DataConfig{IssueLogFile: ""},
		Risk:     DefaultRisk(),
	}
}

// DefaultRisk returns the default scoring and mining thresholds.
func DefaultRisk() RiskConfig {
	return RiskConfig{
		Weights: CompositeWeights{
			Safety:      0.40,
			DataQuality: 0.35,
			Performance: 0.25,
		},
		CutPoints: PriorityCutPoints{Critical: 0.75, High: 0.50, Medium: 0.25},
		Safety:    SafetyConfig{SaturationK: 0.35},
		DataQuality: DataQualityConfig{
			CategoryWeights: map[metrics.IssueCategory]float64{
				metrics.CategoryMissingVisit:       1.5,
				metrics.CategoryMissingPages:       1.0,
				metrics.CategoryMaxDaysOutstanding: 0.5,
				metrics.CategoryEDRROpen:           1.0,
				metrics.CategoryLabIssues:          1.0,
			},
			Denominator:    12.0,
			DominanceShare: 0.70,
			LevelCutPoints: PriorityCutPoints{Critical: 0.75, High: 0.50, Medium: 0.25},
		},
		Performance: PerformanceConfig{
			CriticalMultiple: 3.0,
			HighMultiple:     1.5,
			LowFloor:         0.5,
		},
		RootCause: RootCauseConfig{
			PrevalenceFloor:    0.15,
			MergeLiftThreshold: 2.0,
			SeverityBands:      RootCauseSeverityBands{Critical: 0.25, High: 0.10, Medium: 0.05},
			GeoDominanceRatio:  3.0,
			GeoMaxSites:        10,
		},
		Cohort: CohortConfig{
			MinCohortSites:     5,
			CriticalMultiple:   3.0,
			HighMultiple:       1.5,
			DominantCountFloor: 3,
			SizeBuckets: []SizeBucket{
				{Name: "Small", MinSubjects: 0, MaxSubjects: 49},
				{Name: "Medium", MinSubjects: 50, MaxSubjects: 199},
				{Name: "Large", MinSubjects: 200, MaxSubjects: 499},
				{Name: "Very Large", MinSubjects: 500, MaxSubjects: -1},
			},
		},
		Actions: ActionConfig{
			Templates: map[metrics.IssueCategory]ActionTemplate{
				metrics.CategorySAEPending:         {Text: "Complete pending SAE reviews and submit to safety database", SeverityRank: RankSAE},
				metrics.CategoryUncodedMedDRA:      {Text: "Clear MedDRA coding backlog for adverse event terms", SeverityRank: RankCoding},
				metrics.CategoryUncodedWHODD:       {Text: "Clear WHODrug coding backlog for concomitant medications", SeverityRank: RankCoding},
				metrics.CategoryMissingVisit:       {Text: "Enter outstanding subject visits into the trial database", SeverityRank: RankVisitCRF},
				metrics.CategoryMissingPages:       {Text: "Complete missing CRF pages", SeverityRank: RankVisitCRF},
				metrics.CategoryInactivatedForms:   {Text: "Reconcile inactivated forms against the current casebook version", SeverityRank: RankVisitCRF},
				metrics.CategoryLabIssues:          {Text: "Resolve central lab data discrepancies", SeverityRank: RankReconciliation},
				metrics.CategoryEDRROpen:           {Text: "Close open external data reconciliation discrepancies", SeverityRank: RankReconciliation},
				metrics.CategoryMaxDaysOutstanding: {Text: "Address longest-outstanding open queries", SeverityRank: RankReconciliation},
				metrics.CategoryMaxDaysPageMissing: {Text: "Prioritize oldest missing CRF pages for entry", SeverityRank: RankVisitCRF},
			},
			Scaffold: []string{
				"Schedule site quality call with CRA and data management",
				"Consider triggered monitoring visit",
			},
		},
	}
}

// Load reads configuration from environment variables, applies overrides on
// top of the defaults, and validates the result.
func Load() (*Config, error) {
	config := Default()

	config.Server.Port = getEnvOrDefault("PORT", config.Server.Port)
	config.Database.URL = getEnvOrDefault("DATABASE_URL", config.Database.URL)
	config.Data.IssueLogFile = getEnvOrDefault("ISSUE_LOG_FILE", config.Data.IssueLogFile)

	r := &config.Risk
	r.Weights.Safety = getEnvFloatOrDefault("RISK_WEIGHT_SAFETY", r.Weights.Safety)
	r.Weights.DataQuality = getEnvFloatOrDefault("RISK_WEIGHT_DATA_QUALITY", r.Weights.DataQuality)
	r.Weights.Performance = getEnvFloatOrDefault("RISK_WEIGHT_PERFORMANCE", r.Weights.Performance)
	r.CutPoints.Critical = getEnvFloatOrDefault("RISK_CUT_CRITICAL", r.CutPoints.Critical)
	r.CutPoints.High = getEnvFloatOrDefault("RISK_CUT_HIGH", r.CutPoints.High)
	r.CutPoints.Medium = getEnvFloatOrDefault("RISK_CUT_MEDIUM", r.CutPoints.Medium)
	r.Safety.SaturationK = getEnvFloatOrDefault("SAFETY_SATURATION_K", r.Safety.SaturationK)
	r.DataQuality.Denominator = getEnvFloatOrDefault("DQ_DENOMINATOR", r.DataQuality.Denominator)
	r.DataQuality.DominanceShare = getEnvFloatOrDefault("DQ_DOMINANCE_SHARE", r.DataQuality.DominanceShare)
	r.Performance.CriticalMultiple = getEnvFloatOrDefault("PERF_CRITICAL_MULTIPLE", r.Performance.CriticalMultiple)
	r.Performance.HighMultiple = getEnvFloatOrDefault("PERF_HIGH_MULTIPLE", r.Performance.HighMultiple)
	r.Performance.LowFloor = getEnvFloatOrDefault("PERF_LOW_FLOOR", r.Performance.LowFloor)
	r.RootCause.PrevalenceFloor = getEnvFloatOrDefault("RC_PREVALENCE_FLOOR", r.RootCause.PrevalenceFloor)
	r.RootCause.MergeLiftThreshold = getEnvFloatOrDefault("RC_MERGE_LIFT_THRESHOLD", r.RootCause.MergeLiftThreshold)
	r.RootCause.GeoDominanceRatio = getEnvFloatOrDefault("RC_GEO_DOMINANCE_RATIO", r.RootCause.GeoDominanceRatio)
	r.RootCause.GeoMaxSites = getEnvIntOrDefault("RC_GEO_MAX_SITES", r.RootCause.GeoMaxSites)
	r.Cohort.MinCohortSites = getEnvIntOrDefault("COHORT_MIN_SITES", r.Cohort.MinCohortSites)
	r.Cohort.CriticalMultiple = getEnvFloatOrDefault("COHORT_CRITICAL_MULTIPLE", r.Cohort.CriticalMultiple)
	r.Cohort.HighMultiple = getEnvFloatOrDefault("COHORT_HIGH_MULTIPLE", r.Cohort.HighMultiple)
	r.Cohort.DominantCountFloor = getEnvIntOrDefault("COHORT_DOMINANT_COUNT_FLOOR", r.Cohort.DominantCountFloor)

	if err := config.Risk.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// Validate rejects missing or inconsistent business thresholds. Silently
// defaulting a threshold at scoring time is worse than failing loudly here.
func (r RiskConfig) Validate() error {
	sum := r.Weights.Safety + r.Weights.DataQuality + r.Weights.Performance
	if math.Abs(sum-1.0) > 1e-9 {
		return errors.ConfigInvalid("composite weights must sum to 1.0")
	}
	if r.Weights.Safety <= 0 || r.Weights.DataQuality <= 0 || r.Weights.Performance <= 0 {
		return errors.ConfigInvalid("composite weights must all be positive")
	}
	if err := validateCutPoints(r.CutPoints); err != nil {
		return err
	}
	if err := validateCutPoints(r.DataQuality.LevelCutPoints); err != nil {
		return err
	}
	if r.Safety.SaturationK <= 0 {
		return errors.ConfigInvalid("safety saturation constant must be positive")
	}
	if len(r.DataQuality.CategoryWeights) == 0 {
		return errors.ConfigInvalid("data quality category weights are required")
	}
	for c, w := range r.DataQuality.CategoryWeights {
		if !c.IsValid() {
			return errors.ConfigInvalid("unknown category in data quality weights: " + string(c))
		}
		if w <= 0 {
			return errors.ConfigInvalid("data quality weight must be positive for " + string(c))
		}
	}
	if r.DataQuality.Denominator <= 0 {
		return errors.ConfigInvalid("data quality denominator must be positive")
	}
	if r.DataQuality.DominanceShare <= 0 || r.DataQuality.DominanceShare >= 1 {
		return errors.ConfigInvalid("dominance share must be in (0,1)")
	}
	if r.Performance.CriticalMultiple <= r.Performance.HighMultiple {
		return errors.ConfigInvalid("performance critical multiple must exceed high multiple")
	}
	if r.Performance.HighMultiple <= r.Performance.LowFloor {
		return errors.ConfigInvalid("performance high multiple must exceed low floor")
	}
	if r.RootCause.PrevalenceFloor <= 0 || r.RootCause.PrevalenceFloor >= 1 {
		return errors.ConfigInvalid("root cause prevalence floor must be in (0,1)")
	}
	if r.RootCause.MergeLiftThreshold <= 1 {
		return errors.ConfigInvalid("merge lift threshold must exceed 1.0")
	}
	b := r.RootCause.SeverityBands
	if !(b.Critical > b.High && b.High > b.Medium && b.Medium > 0) {
		return errors.ConfigInvalid("root cause severity bands must be strictly descending and positive")
	}
	if r.RootCause.GeoDominanceRatio <= 1 {
		return errors.ConfigInvalid("geographic dominance ratio must exceed 1.0")
	}
	if r.RootCause.GeoMaxSites <= 0 {
		return errors.ConfigInvalid("geographic max sites must be positive")
	}
	if r.Cohort.MinCohortSites <= 0 {
		return errors.ConfigInvalid("minimum cohort sample size is required and must be positive")
	}
	if r.Cohort.CriticalMultiple <= r.Cohort.HighMultiple || r.Cohort.HighMultiple <= 1 {
		return errors.ConfigInvalid("cohort multiples must satisfy critical > high > 1.0")
	}
	if r.Cohort.DominantCountFloor <= 0 {
		return errors.ConfigInvalid("dominant issue count floor must be positive")
	}
	if err := validateSizeBuckets(r.Cohort.SizeBuckets); err != nil {
		return err
	}
	if len(r.Actions.Templates) == 0 {
		return errors.ConfigInvalid("action templates are required")
	}
	for _, c := range metrics.AllCategories() {
		if _, ok := r.Actions.Templates[c]; !ok {
			return errors.ConfigInvalid("action template missing for category " + string(c))
		}
	}
	return nil
}

func validateCutPoints(p PriorityCutPoints) error {
	if !(p.Critical > p.High && p.High > p.Medium && p.Medium > 0 && p.Critical < 1) {
		return errors.ConfigInvalid("priority cut points must be strictly descending within (0,1)")
	}
	return nil
}

func validateSizeBuckets(buckets []SizeBucket) error {
	if len(buckets) == 0 {
		return errors.ConfigInvalid("size buckets are required")
	}
	for i, b := range buckets {
		if b.Name == "" {
			return errors.ConfigInvalid("size bucket name is required")
		}
		if i == 0 {
			if b.MinSubjects != 0 {
				return errors.ConfigInvalid("first size bucket must start at 0")
			}
			continue
		}
		prev := buckets[i-1]
		if prev.MaxSubjects < 0 {
			return errors.ConfigInvalid("only the last size bucket may be unbounded")
		}
		if b.MinSubjects != prev.MaxSubjects+1 {
			return errors.ConfigInvalid("size buckets must be contiguous and non-overlapping")
		}
	}
	last := buckets[len(buckets)-1]
	if last.MaxSubjects >= 0 {
		return errors.ConfigInvalid("last size bucket must be unbounded")
	}
	return nil
}

// BucketFor returns the name of the size bucket containing a subject count.
func (c CohortConfig) BucketFor(subjects int) string {
	for _, b := range c.SizeBuckets {
		if b.Contains(subjects) {
			return b.Name
		}
	}
	// Unreachable with validated buckets; last bucket is unbounded.
	return c.SizeBuckets[len(c.SizeBuckets)-1].Name
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
