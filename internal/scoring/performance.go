package scoring

import (
	"siterisk/domain/metrics"
	"siterisk/domain/risk"
	"siterisk/internal/config"
)

// ScorePerformance compares a site's composite DQI against the portfolio
// average. The key finding always states the multiple, so downstream
// consumers render it from the structured value rather than a baked-in
// figure. With an empty or zero baseline the multiple defaults to 1.0
// (site indistinguishable from portfolio). Falling below the low floor is
// an escalation trigger: a site that quiet is suspected under-reporting,
// not health.
func ScorePerformance(m metrics.SiteMetrics, baseline metrics.PortfolioBaseline,
	dqCfg config.DataQualityConfig, cfg config.PerformanceConfig) risk.DomainScore {

	siteDQI := RawDQI(m, dqCfg)

	multiple := 1.0
	if baseline.MeanDQI > 0 {
		multiple = siteDQI / baseline.MeanDQI
	}

	// Saturating normalization: 0.5 exactly at the critical multiple,
	// approaching 1 as the site diverges further from the portfolio.
	score := clamp01(multiple / (multiple + cfg.CriticalMultiple))

	var level risk.Level
	var finding risk.KeyFinding
	switch {
	case multiple >= cfg.CriticalMultiple:
		level = risk.LevelCritical
		finding = risk.KeyFinding{Code: risk.FindingDQIVsPortfolio, Value: multiple}
	case multiple >= cfg.HighMultiple:
		level = risk.LevelHigh
		finding = risk.KeyFinding{Code: risk.FindingDQIVsPortfolio, Value: multiple}
	case multiple >= cfg.LowFloor:
		level = risk.LevelLow
		finding = risk.KeyFinding{Code: risk.FindingWithinExpected, Value: multiple}
	default:
		// Suspected under-reporting escalates just like a high multiple.
		level = risk.LevelCritical
		finding = risk.KeyFinding{Code: risk.FindingSuspectedUnderReporting, Value: multiple}
	}

	return risk.DomainScore{
		Domain:     risk.DomainPerformance,
		Level:      level,
		Score:      score,
		KeyFinding: finding,
		DataGaps:   gapsIn(m, dqCategories(dqCfg)),
	}
}
