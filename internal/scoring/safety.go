package scoring

import (
	"math"

	"siterisk/domain/metrics"
	"siterisk/domain/risk"
	"siterisk/internal/config"
)

// safetyCategories are the inputs the safety scorer reads. Missing counts
// score as zero and are reported as data gaps.
var safetyCategories = []metrics.IssueCategory{
	metrics.CategorySAEPending,
	metrics.CategoryUncodedMedDRA,
	metrics.CategoryUncodedWHODD,
}

// ScoreSafety converts a site's safety-relevant counts into a domain score.
// Any pending SAE is a critical signal: regulatory-submission exposure does
// not scale down with count. The numeric score follows the saturating curve
// 1 - exp(-k * sae_pending) with k from configuration.
func ScoreSafety(m metrics.SiteMetrics, cfg config.SafetyConfig) risk.DomainScore {
	saePending := m.Count(metrics.CategorySAEPending)
	uncoded := m.Count(metrics.CategoryUncodedMedDRA) + m.Count(metrics.CategoryUncodedWHODD)

	score := 1 - math.Exp(-cfg.SaturationK*float64(saePending))
	score = clamp01(score)

	var level risk.Level
	var finding risk.KeyFinding
	switch {
	case saePending >= 1:
		level = risk.LevelCritical
		finding = risk.KeyFinding{
			Code:     risk.FindingSAEReviewsPending,
			Category: metrics.CategorySAEPending,
			Value:    float64(saePending),
		}
	case uncoded >= 1:
		level = risk.LevelHigh
		finding = risk.KeyFinding{
			Code:  risk.FindingCodingBacklog,
			Value: float64(uncoded),
		}
	default:
		level = risk.LevelLow
		finding = risk.KeyFinding{Code: risk.FindingNoSafetySignal}
	}

	return risk.DomainScore{
		Domain:     risk.DomainSafety,
		Level:      level,
		Score:      score,
		KeyFinding: finding,
		DataGaps:   gapsIn(m, safetyCategories),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// gapsIn returns the subset of categories with no recorded count at the
// site, preserving input order.
func gapsIn(m metrics.SiteMetrics, categories []metrics.IssueCategory) []metrics.IssueCategory {
	var gaps []metrics.IssueCategory
	for _, c := range categories {
		if _, ok := m.IssueCounts[c]; !ok {
			gaps = append(gaps, c)
		}
	}
	return gaps
}
