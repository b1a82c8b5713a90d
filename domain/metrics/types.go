package metrics

import (
	"fmt"
	"sort"

	"siterisk/domain/core"
)

// IssueCategory identifies a per-site issue metric. The category set is
// closed: lookup tables elsewhere (action templates, interpretation tags,
// contributing factors) must cover every category listed in AllCategories.
type IssueCategory string

const (
	CategorySAEPending         IssueCategory = "sae_pending"
	CategoryUncodedMedDRA      IssueCategory = "uncoded_meddra"
	CategoryUncodedWHODD       IssueCategory = "uncoded_whodd"
	CategoryMissingVisit       IssueCategory = "missing_visit"
	CategoryMissingPages       IssueCategory = "missing_pages"
	CategoryLabIssues          IssueCategory = "lab_issues"
	CategoryEDRROpen           IssueCategory = "edrr_open"
	CategoryInactivatedForms   IssueCategory = "inactivated_forms"
	CategoryMaxDaysOutstanding IssueCategory = "max_days_outstanding"
	CategoryMaxDaysPageMissing IssueCategory = "max_days_page_missing"
)

// AllCategories returns the closed category set in canonical order.
func AllCategories() []IssueCategory {
	return []IssueCategory{
		CategorySAEPending,
		CategoryUncodedMedDRA,
		CategoryUncodedWHODD,
		CategoryMissingVisit,
		CategoryMissingPages,
		CategoryLabIssues,
		CategoryEDRROpen,
		CategoryInactivatedForms,
		CategoryMaxDaysOutstanding,
		CategoryMaxDaysPageMissing,
	}
}

// IsValid reports whether c is a member of the closed category set.
func (c IssueCategory) IsValid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// IsGauge reports whether the category aggregates by maximum rather than by
// sum. The max_days_* categories are day counters, not event counts.
func (c IssueCategory) IsGauge() bool {
	return c == CategoryMaxDaysOutstanding || c == CategoryMaxDaysPageMissing
}

// String returns the wire name of the category.
func (c IssueCategory) String() string { return string(c) }

// RawEvent is a single event-level record from a source clinical system.
// Category may be empty for pure enrollment records that only contribute a
// subject to the site's census. Value distinguishes absence from a reported
// zero: nil means a bare occurrence record (one event for counts, presence
// for gauges), while an explicit 0 records the category as measured with no
// issues rather than as a data gap.
type RawEvent struct {
	StudyID   core.StudyID  `json:"study_id"`
	SiteID    core.SiteID   `json:"site_id"`
	Country   string        `json:"country"`
	Region    string        `json:"region"`
	SubjectID string        `json:"subject_id,omitempty"`
	HighRisk  bool          `json:"high_risk,omitempty"`
	Category  IssueCategory `json:"category,omitempty"`
	Value     *int          `json:"value,omitempty"`
}

// SiteMetrics is the per-(study, site) reduction of raw events. Created once
// per aggregation run and treated as immutable thereafter.
type SiteMetrics struct {
	StudyID              core.StudyID          `json:"study_id"`
	SiteID               core.SiteID           `json:"site_id"`
	Country              string                `json:"country"`
	Region               string                `json:"region"`
	SubjectCount         int                   `json:"subject_count"`
	HighRiskSubjectCount int                   `json:"high_risk_subject_count"`
	IssueCounts          map[IssueCategory]int `json:"issue_counts"`
}

// Key returns the canonical study/site identity string.
func (m SiteMetrics) Key() string {
	return fmt.Sprintf("%s/%s", m.StudyID, m.SiteID)
}

// Count returns the count for a category, treating a missing entry as zero.
func (m SiteMetrics) Count(c IssueCategory) int {
	if m.IssueCounts == nil {
		return 0
	}
	return m.IssueCounts[c]
}

// HasIssue reports presence (count > 0) of a category at this site.
func (m SiteMetrics) HasIssue(c IssueCategory) bool {
	return m.Count(c) > 0
}

// MissingCategories returns categories with no recorded count, in canonical
// order. Scorers treat these as zero but report them as data gaps.
func (m SiteMetrics) MissingCategories() []IssueCategory {
	var missing []IssueCategory
	for _, c := range AllCategories() {
		if _, ok := m.IssueCounts[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// Validate checks the SiteMetrics invariants: all counts non-negative,
// high-risk subjects bounded by the subject census, and only known
// categories present.
func (m SiteMetrics) Validate() error {
	if m.StudyID == "" || m.SiteID == "" {
		return fmt.Errorf("site identity incomplete: study=%q site=%q", m.StudyID, m.SiteID)
	}
	if m.SubjectCount < 0 {
		return fmt.Errorf("site %s: subject_count %d is negative", m.Key(), m.SubjectCount)
	}
	if m.HighRiskSubjectCount < 0 {
		return fmt.Errorf("site %s: high_risk_subject_count %d is negative", m.Key(), m.HighRiskSubjectCount)
	}
	if m.HighRiskSubjectCount > m.SubjectCount {
		return fmt.Errorf("site %s: high_risk_subject_count %d exceeds subject_count %d",
			m.Key(), m.HighRiskSubjectCount, m.SubjectCount)
	}
	for c, n := range m.IssueCounts {
		if !c.IsValid() {
			return fmt.Errorf("site %s: unknown issue category %q", m.Key(), c)
		}
		if n < 0 {
			return fmt.Errorf("site %s: category %s count %d is negative", m.Key(), c, n)
		}
	}
	return nil
}

// SortSites orders metrics by (study, site) for deterministic downstream
// output.
func SortSites(sites []SiteMetrics) {
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].StudyID != sites[j].StudyID {
			return sites[i].StudyID < sites[j].StudyID
		}
		return sites[i].SiteID < sites[j].SiteID
	})
}

// Exclusion records a site dropped from a run with the validation failure
// that caused it. Exclusions are reported, never fatal to the run.
type Exclusion struct {
	StudyID core.StudyID `json:"study_id"`
	SiteID  core.SiteID  `json:"site_id"`
	Reason  string       `json:"reason"`
}

// PortfolioBaseline is the read-only portfolio-wide aggregate computed once
// per run and passed immutably into every scorer and detector call.
type PortfolioBaseline struct {
	SiteCount    int                       `json:"site_count"`
	SubjectCount int                       `json:"subject_count"`
	MeanDQI      float64                   `json:"mean_dqi"`
	Prevalence   map[IssueCategory]float64 `json:"prevalence"` // fraction of sites with count > 0
	MeanRates    map[IssueCategory]float64 `json:"mean_rates"` // mean per-site count
	HighRiskRate float64                   `json:"high_risk_rate"`
}

// PrevalenceOf returns the portfolio prevalence of a category, zero when the
// category never occurs.
func (b PortfolioBaseline) PrevalenceOf(c IssueCategory) float64 {
	if b.Prevalence == nil {
		return 0
	}
	return b.Prevalence[c]
}

// MeanRateOf returns the portfolio mean per-site count for a category.
func (b PortfolioBaseline) MeanRateOf(c IssueCategory) float64 {
	if b.MeanRates == nil {
		return 0
	}
	return b.MeanRates[c]
}
