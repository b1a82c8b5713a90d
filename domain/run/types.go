package run

import (
	"time"

	"siterisk/domain/core"
	"siterisk/domain/insight"
	"siterisk/domain/metrics"
	"siterisk/domain/risk"
)

// SiteResult pairs a site's composite score with its three domain scores.
type SiteResult struct {
	Composite risk.CompositeRiskScore `json:"composite"`
	Domains   []risk.DomainScore      `json:"domains"`
}

// Manifest carries the audit metadata for one run. Wall-clock fields live
// here and only here: derived artifacts are timestamp-free so identical
// inputs yield byte-identical outputs.
type Manifest struct {
	RunID          core.RunID `json:"run_id"`
	CreatedAt      time.Time  `json:"created_at"`
	RuntimeMs      int64      `json:"runtime_ms"`
	SiteCount      int        `json:"site_count"`
	ExcludedCount  int        `json:"excluded_count"`
	PairCount      int        `json:"pair_count"`
	RootCauseCount int        `json:"root_cause_count"`
}

// Result is the complete structured output of one pipeline run, consumed by
// the out-of-scope report renderer and narrative stage.
type Result struct {
	RunID      core.RunID                                            `json:"run_id"`
	Sites      []metrics.SiteMetrics                                 `json:"sites"`
	Exclusions []metrics.Exclusion                                   `json:"exclusions,omitempty"`
	Baseline   metrics.PortfolioBaseline                             `json:"baseline"`
	Scores     []SiteResult                                          `json:"scores"`
	Pairs      []insight.CoOccurrencePair                            `json:"cooccurrence"`
	RootCauses []insight.RootCause                                   `json:"root_causes"`
	Cohorts    map[insight.CohortDimension][]insight.CohortAggregate `json:"cohorts"`
	Suppressed []insight.SuppressedCohort                            `json:"suppressed_cohorts,omitempty"`

	// Fingerprint covers every derived artifact above except the run ID and
	// manifest, so re-running on identical metrics reproduces it exactly.
	Fingerprint core.Hash `json:"fingerprint"`
	Manifest    Manifest  `json:"manifest"`
}

// fingerprintPayload is the canonical subset hashed into Fingerprint.
type fingerprintPayload struct {
	Sites      []metrics.SiteMetrics                                 `json:"sites"`
	Exclusions []metrics.Exclusion                                   `json:"exclusions"`
	Baseline   metrics.PortfolioBaseline                             `json:"baseline"`
	Scores     []SiteResult                                          `json:"scores"`
	Pairs      []insight.CoOccurrencePair                            `json:"cooccurrence"`
	RootCauses []insight.RootCause                                   `json:"root_causes"`
	Cohorts    map[insight.CohortDimension][]insight.CohortAggregate `json:"cohorts"`
	Suppressed []insight.SuppressedCohort                            `json:"suppressed_cohorts"`
}

// ComputeFingerprint hashes the derived artifacts of the result.
func (r *Result) ComputeFingerprint() (core.Hash, error) {
	return core.Fingerprint(fingerprintPayload{
		Sites:      r.Sites,
		Exclusions: r.Exclusions,
		Baseline:   r.Baseline,
		Scores:     r.Scores,
		Pairs:      r.Pairs,
		RootCauses: r.RootCauses,
		Cohorts:    r.Cohorts,
		Suppressed: r.Suppressed,
	})
}
