package risk

import (
	"siterisk/domain/core"
	"siterisk/domain/metrics"
)

// Level is a risk severity tier shared by domain scores and composite
// priorities.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelHigh     Level = "HIGH"
	LevelMedium   Level = "MEDIUM"
	LevelLow      Level = "LOW"
)

// Rank returns the ordering rank of a level, lower is more severe.
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 0
	case LevelHigh:
		return 1
	case LevelMedium:
		return 2
	case LevelLow:
		return 3
	default:
		return 4
	}
}

// MoreSevereThan reports whether l outranks other.
func (l Level) MoreSevereThan(other Level) bool {
	return l.Rank() < other.Rank()
}

// Domain identifies one of the three scoring domains.
type Domain string

const (
	DomainSafety      Domain = "safety"
	DomainDataQuality Domain = "data_quality"
	DomainPerformance Domain = "performance"
)

// KeyFinding is the structured fact behind a domain score. Narrative phrasing
// is the responsibility of downstream consumers; the core only emits the
// code/value pair.
type KeyFinding struct {
	Code     string                 `json:"code"`
	Category metrics.IssueCategory  `json:"category,omitempty"`
	Value    float64                `json:"value"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// Key finding codes emitted by the domain scorers.
const (
	FindingSAEReviewsPending       = "sae_reviews_pending"
	FindingCodingBacklog           = "coding_backlog"
	FindingNoSafetySignal          = "no_safety_signal"
	FindingDQIComposite            = "dqi_composite"
	FindingDominantIssueShare      = "single_issue_type_dominates"
	FindingDQIVsPortfolio          = "dqi_vs_portfolio_multiple"
	FindingWithinExpected          = "within_expected_parameters"
	FindingSuspectedUnderReporting = "suspected_under_reporting"
)

// DomainScore is the output of one domain scorer for one site and run.
type DomainScore struct {
	Domain     Domain                  `json:"domain"`
	Level      Level                   `json:"level"`
	Score      float64                 `json:"score"` // normalized to [0,1]
	KeyFinding KeyFinding              `json:"key_finding"`
	DataGaps   []metrics.IssueCategory `json:"data_gaps,omitempty"`
}

// RecommendedAction is one entry in a site's prioritized action list.
// SeverityRank orders actions across tiers: SAE-related (0) before coding
// gaps (1) before visit/CRF gaps (2) before reconciliation/audit-trail (3);
// scaffold process actions rank last (9).
type RecommendedAction struct {
	Text           string                `json:"text"`
	SourceCategory metrics.IssueCategory `json:"source_category,omitempty"`
	SeverityRank   int                   `json:"severity_rank"`
}

// CompositeRiskScore combines the three domain scores for one site into an
// overall score, priority tier and deduplicated action list. Derived per run,
// never stored independently of it.
type CompositeRiskScore struct {
	StudyID      core.StudyID        `json:"study_id"`
	SiteID       core.SiteID         `json:"site_id"`
	OverallScore float64             `json:"overall_score"`
	Priority     Level               `json:"priority"`
	Actions      []RecommendedAction `json:"actions"`
}
