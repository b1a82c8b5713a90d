package cohort

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"siterisk/domain/insight"
	"siterisk/domain/metrics"
	"siterisk/domain/risk"
	"siterisk/internal/config"
	"siterisk/internal/errors"
	"siterisk/internal/scoring"
)

// Detect computes cohort aggregates for one grouping dimension and flags
// outliers against the portfolio baseline. Cohorts below the minimum sample
// size are suppressed from outlier output (small-N ratios are noise, not
// signal) and reported separately; suppression is never fatal.
func Detect(sites []metrics.SiteMetrics, dim insight.CohortDimension,
	baseline metrics.PortfolioBaseline, cfg config.RiskConfig) ([]insight.CohortAggregate, []insight.SuppressedCohort) {

	all := BuildAggregates(sites, dim, baseline, cfg)

	var kept []insight.CohortAggregate
	var suppressed []insight.SuppressedCohort
	for _, agg := range all {
		if agg.SiteCount < cfg.Cohort.MinCohortSites {
			err := errors.InsufficientSample(fmt.Sprintf(
				"cohort %q has %d sites, below the minimum sample size %d",
				agg.Key, agg.SiteCount, cfg.Cohort.MinCohortSites))
			suppressed = append(suppressed, insight.SuppressedCohort{
				Dimension: dim,
				Key:       agg.Key,
				SiteCount: agg.SiteCount,
				Reason:    err.Error(),
			})
			continue
		}
		kept = append(kept, agg)
	}
	return kept, suppressed
}

// BuildAggregates computes the per-cohort aggregates for a dimension without
// the sample-size guard. The root-cause miner uses the unguarded country
// view for its geographic special case; Detect applies the guard for
// outlier output.
func BuildAggregates(sites []metrics.SiteMetrics, dim insight.CohortDimension,
	baseline metrics.PortfolioBaseline, cfg config.RiskConfig) []insight.CohortAggregate {

	groups := make(map[string][]metrics.SiteMetrics)
	for _, m := range sites {
		key := cohortKey(m, dim, cfg.Cohort)
		if key == "" {
			key = "(unknown)"
		}
		groups[key] = append(groups[key], m)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	aggs := make([]insight.CohortAggregate, 0, len(keys))
	for _, key := range keys {
		aggs = append(aggs, aggregateCohort(dim, key, groups[key], baseline, cfg))
	}

	sort.SliceStable(aggs, func(i, j int) bool {
		if aggs[i].VsPortfolioRatio != aggs[j].VsPortfolioRatio {
			return aggs[i].VsPortfolioRatio > aggs[j].VsPortfolioRatio
		}
		return aggs[i].Key < aggs[j].Key
	})
	return aggs
}

func cohortKey(m metrics.SiteMetrics, dim insight.CohortDimension, cfg config.CohortConfig) string {
	switch dim {
	case insight.DimensionRegion:
		return m.Region
	case insight.DimensionCountry:
		return m.Country
	case insight.DimensionStudy:
		return m.StudyID.String()
	case insight.DimensionSizeBucket:
		return cfg.BucketFor(m.SubjectCount)
	default:
		return ""
	}
}

func aggregateCohort(dim insight.CohortDimension, key string, members []metrics.SiteMetrics,
	baseline metrics.PortfolioBaseline, cfg config.RiskConfig) insight.CohortAggregate {

	dqis := make([]float64, len(members))
	subjects := 0
	highRisk := 0
	totals := make(map[metrics.IssueCategory]int)
	for i, m := range members {
		dqis[i] = scoring.RawDQI(m, cfg.DataQuality)
		subjects += m.SubjectCount
		highRisk += m.HighRiskSubjectCount
		for _, c := range metrics.AllCategories() {
			totals[c] += m.Count(c)
		}
	}

	avgDQI, _ := stats.Mean(dqis)
	maxDQI, _ := stats.Max(dqis)

	agg := insight.CohortAggregate{
		Dimension:    dim,
		Key:          key,
		SiteCount:    len(members),
		SubjectCount: subjects,
		AvgDQI:       avgDQI,
		MaxDQI:       maxDQI,
	}
	if subjects > 0 {
		agg.HighRiskRate = float64(highRisk) / float64(subjects)
	}
	if baseline.MeanDQI > 0 {
		agg.VsPortfolioRatio = avgDQI / baseline.MeanDQI
	} else {
		agg.VsPortfolioRatio = 1.0
	}

	agg.CategoryRatios = make(map[metrics.IssueCategory]float64)
	n := float64(len(members))
	for _, c := range metrics.AllCategories() {
		portfolioRate := baseline.MeanRateOf(c)
		if portfolioRate <= 0 {
			continue
		}
		agg.CategoryRatios[c] = (float64(totals[c]) / n) / portfolioRate
	}

	// Dominant issue: highest vs-portfolio ratio among categories with a
	// non-trivial absolute count. The count floor keeps a single stray
	// occurrence from presenting as a 3x+ concentration.
	for _, c := range metrics.AllCategories() {
		ratio, ok := agg.CategoryRatios[c]
		if !ok || totals[c] < cfg.Cohort.DominantCountFloor {
			continue
		}
		if ratio > agg.DominantRatio {
			agg.DominantRatio = ratio
			agg.DominantCategory = c
		}
	}

	switch {
	case agg.VsPortfolioRatio >= cfg.Cohort.CriticalMultiple:
		agg.Priority = risk.LevelCritical
	case agg.VsPortfolioRatio >= cfg.Cohort.HighMultiple:
		agg.Priority = risk.LevelHigh
	case agg.VsPortfolioRatio >= 1.0:
		agg.Priority = risk.LevelMedium
	default:
		agg.Priority = risk.LevelLow
	}
	return agg
}
