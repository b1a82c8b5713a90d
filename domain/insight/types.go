package insight

import (
	"fmt"
	"sort"
	"strings"

	"siterisk/domain/metrics"
	"siterisk/domain/risk"
)

// CoOccurrencePair is the pairwise statistic for an unordered category pair.
// Categories are stored in canonical order (A < B), which makes the lift
// symmetry lift(A,B) == lift(B,A) structural.
type CoOccurrencePair struct {
	CategoryA     metrics.IssueCategory `json:"category_a"`
	CategoryB     metrics.IssueCategory `json:"category_b"`
	Lift          float64               `json:"lift"`
	Correlation   float64               `json:"correlation"` // Pearson r of raw counts, [-1,1]
	PValue        float64               `json:"p_value"`     // significance of the correlation
	SitesWithA    int                   `json:"sites_with_a"`
	SitesWithB    int                   `json:"sites_with_b"`
	SitesWithBoth int                   `json:"sites_with_both"`
	SampleSize    int                   `json:"sample_size"`
	Tag           InterpretationTag     `json:"interpretation_tag"`
}

// NewPairKey canonicalizes an unordered category pair.
func NewPairKey(a, b metrics.IssueCategory) (metrics.IssueCategory, metrics.IssueCategory) {
	if b < a {
		return b, a
	}
	return a, b
}

// RootCauseSeverity bands a root cause by its affected-site share.
type RootCauseSeverity string

const (
	SeverityCritical RootCauseSeverity = "Critical"
	SeverityHigh     RootCauseSeverity = "High"
	SeverityMedium   RootCauseSeverity = "Medium"
	SeverityLow      RootCauseSeverity = "Low"
)

// RootCauseScope distinguishes portfolio-wide mechanisms from geographic
// concentrations.
type RootCauseScope string

const (
	ScopePortfolio  RootCauseScope = "portfolio"
	ScopeGeographic RootCauseScope = "geographic"
)

// Evidence is a single quantitative statement supporting a root cause.
// Downstream narrative synthesis turns these into prose; the core emits
// only the structured metric/value pair.
type Evidence struct {
	Metric   string                `json:"metric"`
	Value    float64               `json:"value"`
	Category metrics.IssueCategory `json:"category,omitempty"`
	Country  string                `json:"country,omitempty"`
}

// RootCause is a mined systemic cause spanning one or more issue categories.
type RootCause struct {
	ID                  string                  `json:"id"`
	Label               string                  `json:"label"`
	Scope               RootCauseScope          `json:"scope"`
	Country             string                  `json:"country,omitempty"` // set for geographic causes
	Categories          []metrics.IssueCategory `json:"category_set"`
	Severity            RootCauseSeverity       `json:"severity"`
	Confidence          float64                 `json:"confidence"` // [0,1]
	AffectedSiteCount   int                     `json:"affected_site_count"`
	Evidence            []Evidence              `json:"evidence"`
	ContributingFactors []string                `json:"contributing_factors"`
}

// RootCauseID derives the deterministic identifier for a category set.
func RootCauseID(categories []metrics.IssueCategory) string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	sort.Strings(names)
	return "rc-" + strings.Join(names, "+")
}

// GeographicRootCauseID derives the identifier for a country/category cause.
func GeographicRootCauseID(country string, c metrics.IssueCategory) string {
	return fmt.Sprintf("rc-geo-%s-%s", strings.ToLower(country), c)
}

// CohortDimension selects the grouping axis for outlier detection.
type CohortDimension string

const (
	DimensionRegion     CohortDimension = "region"
	DimensionCountry    CohortDimension = "country"
	DimensionStudy      CohortDimension = "study"
	DimensionSizeBucket CohortDimension = "size_bucket"
)

// AllDimensions returns the cohort dimensions in canonical order.
func AllDimensions() []CohortDimension {
	return []CohortDimension{DimensionRegion, DimensionCountry, DimensionStudy, DimensionSizeBucket}
}

// CohortAggregate compares one cohort against the portfolio baseline.
type CohortAggregate struct {
	Dimension        CohortDimension                   `json:"dimension"`
	Key              string                            `json:"cohort_key"`
	SiteCount        int                               `json:"site_count"`
	SubjectCount     int                               `json:"subject_count"`
	AvgDQI           float64                           `json:"avg_dqi"`
	MaxDQI           float64                           `json:"max_dqi"`
	HighRiskRate     float64                           `json:"high_risk_rate"`
	VsPortfolioRatio float64                           `json:"vs_portfolio_ratio"`
	CategoryRatios   map[metrics.IssueCategory]float64 `json:"category_ratios,omitempty"`
	DominantCategory metrics.IssueCategory             `json:"dominant_category,omitempty"`
	DominantRatio    float64                           `json:"dominant_ratio,omitempty"`
	Priority         risk.Level                        `json:"priority"`
}

// SuppressedCohort records a cohort excluded from outlier output because its
// site count fell below the minimum sample size.
type SuppressedCohort struct {
	Dimension CohortDimension `json:"dimension"`
	Key       string          `json:"cohort_key"`
	SiteCount int             `json:"site_count"`
	Reason    string          `json:"reason"`
}
