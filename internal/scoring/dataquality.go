package scoring

import (
	"math"
	"sort"

	"siterisk/domain/metrics"
	"siterisk/domain/risk"
	"siterisk/internal/config"
)

// RawDQI computes the unnormalized Data Quality Index for a site: the
// weighted log-scaled sum of the configured data-quality categories. The
// same function feeds the DQ scorer, the portfolio baseline, and the cohort
// aggregates, so all three stay comparable.
func RawDQI(m metrics.SiteMetrics, cfg config.DataQualityConfig) float64 {
	total := 0.0
	for c, w := range cfg.CategoryWeights {
		total += w * math.Log1p(float64(m.Count(c)))
	}
	return total
}

// ScoreDataQuality converts a site's data-quality counts into a normalized
// DQI contribution in [0,1]. When a single category accounts for more than
// the configured share of the weighted total, the key finding flags a
// systemic rather than diffuse problem.
func ScoreDataQuality(m metrics.SiteMetrics, cfg config.DataQualityConfig) risk.DomainScore {
	raw := RawDQI(m, cfg)
	score := clamp01(raw / cfg.Denominator)

	level := levelFromCutPoints(score, cfg.LevelCutPoints)

	finding := risk.KeyFinding{Code: risk.FindingDQIComposite, Value: score}
	if dominant, share, ok := dominantCategory(m, cfg); ok && share > cfg.DominanceShare {
		finding = risk.KeyFinding{
			Code:     risk.FindingDominantIssueShare,
			Category: dominant,
			Value:    share,
		}
	}

	return risk.DomainScore{
		Domain:     risk.DomainDataQuality,
		Level:      level,
		Score:      score,
		KeyFinding: finding,
		DataGaps:   gapsIn(m, dqCategories(cfg)),
	}
}

// dominantCategory returns the category with the largest weighted
// contribution and its share of the weighted total.
func dominantCategory(m metrics.SiteMetrics, cfg config.DataQualityConfig) (metrics.IssueCategory, float64, bool) {
	total := 0.0
	best := metrics.IssueCategory("")
	bestTerm := 0.0
	for _, c := range dqCategories(cfg) {
		term := cfg.CategoryWeights[c] * math.Log1p(float64(m.Count(c)))
		total += term
		if term > bestTerm {
			bestTerm = term
			best = c
		}
	}
	if total == 0 {
		return "", 0, false
	}
	return best, bestTerm / total, true
}

// dqCategories returns the configured DQ categories in canonical order so
// ties resolve deterministically.
func dqCategories(cfg config.DataQualityConfig) []metrics.IssueCategory {
	cats := make([]metrics.IssueCategory, 0, len(cfg.CategoryWeights))
	for c := range cfg.CategoryWeights {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

func levelFromCutPoints(score float64, p config.PriorityCutPoints) risk.Level {
	switch {
	case score >= p.Critical:
		return risk.LevelCritical
	case score >= p.High:
		return risk.LevelHigh
	case score >= p.Medium:
		return risk.LevelMedium
	default:
		return risk.LevelLow
	}
}
