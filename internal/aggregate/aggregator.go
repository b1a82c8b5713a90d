package aggregate

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"siterisk/domain/metrics"
	"siterisk/internal/config"
	"siterisk/internal/errors"
	"siterisk/internal/scoring"
)

type siteAccumulator struct {
	m            metrics.SiteMetrics
	subjects     map[string]bool
	highRisk     map[string]bool
	invalidEvent error
}

// Aggregate reduces raw event-level records into one SiteMetrics per
// (study, site). Counts are summed per category without cross-subject
// deduplication; gauge categories (max-day counters) aggregate by maximum.
// A nil event value is a bare occurrence record; an explicit zero records
// the category as measured, so it never resurfaces as a data gap.
// subject_count is the distinct-subject cardinality, and the high-risk flag
// is passed through from upstream subject classification. Sites failing
// validation are excluded with a reason and the run continues.
func Aggregate(events []metrics.RawEvent) ([]metrics.SiteMetrics, []metrics.Exclusion) {
	order := make([]string, 0)
	acc := make(map[string]*siteAccumulator)

	for _, ev := range events {
		key := fmt.Sprintf("%s/%s", ev.StudyID, ev.SiteID)
		a, ok := acc[key]
		if !ok {
			a = &siteAccumulator{
				m: metrics.SiteMetrics{
					StudyID:     ev.StudyID,
					SiteID:      ev.SiteID,
					Country:     ev.Country,
					Region:      ev.Region,
					IssueCounts: make(map[metrics.IssueCategory]int),
				},
				subjects: make(map[string]bool),
				highRisk: make(map[string]bool),
			}
			acc[key] = a
			order = append(order, key)
		}
		if a.invalidEvent != nil {
			continue
		}

		if ev.SubjectID != "" {
			a.subjects[ev.SubjectID] = true
			if ev.HighRisk {
				a.highRisk[ev.SubjectID] = true
			}
		}
		if ev.Category == "" {
			continue
		}
		if !ev.Category.IsValid() {
			a.invalidEvent = errors.ValidationError(
				fmt.Sprintf("unknown issue category %q", ev.Category))
			continue
		}
		switch {
		case ev.Value == nil:
			// Bare occurrence record: one event for counts, presence for
			// gauges.
			if ev.Category.IsGauge() {
				if _, ok := a.m.IssueCounts[ev.Category]; !ok {
					a.m.IssueCounts[ev.Category] = 0
				}
			} else {
				a.m.IssueCounts[ev.Category]++
			}
		case *ev.Value < 0:
			a.invalidEvent = errors.ValidationError(
				fmt.Sprintf("negative count %d for category %s", *ev.Value, ev.Category))
		case ev.Category.IsGauge():
			if cur, ok := a.m.IssueCounts[ev.Category]; !ok || *ev.Value > cur {
				a.m.IssueCounts[ev.Category] = *ev.Value
			}
		default:
			a.m.IssueCounts[ev.Category] += *ev.Value
		}
	}

	var sites []metrics.SiteMetrics
	var exclusions []metrics.Exclusion
	for _, key := range order {
		a := acc[key]
		a.m.SubjectCount = len(a.subjects)
		a.m.HighRiskSubjectCount = len(a.highRisk)

		err := a.invalidEvent
		if err == nil {
			err = a.m.Validate()
		}
		if err != nil {
			exclusions = append(exclusions, metrics.Exclusion{
				StudyID: a.m.StudyID,
				SiteID:  a.m.SiteID,
				Reason:  err.Error(),
			})
			continue
		}
		sites = append(sites, a.m)
	}

	metrics.SortSites(sites)
	return sites, exclusions
}

// ComputeBaseline derives the immutable portfolio-wide aggregate from the
// validated site population: mean raw DQI, per-category prevalence and mean
// rates, and the portfolio high-risk rate. Computed once per run and passed
// by parameter into every scorer and detector call.
func ComputeBaseline(sites []metrics.SiteMetrics, cfg config.RiskConfig) metrics.PortfolioBaseline {
	baseline := metrics.PortfolioBaseline{
		SiteCount:  len(sites),
		Prevalence: make(map[metrics.IssueCategory]float64),
		MeanRates:  make(map[metrics.IssueCategory]float64),
	}
	if len(sites) == 0 {
		return baseline
	}

	dqis := make([]float64, len(sites))
	totalSubjects := 0
	totalHighRisk := 0
	presence := make(map[metrics.IssueCategory]int)
	totals := make(map[metrics.IssueCategory]int)

	for i, m := range sites {
		dqis[i] = scoring.RawDQI(m, cfg.DataQuality)
		totalSubjects += m.SubjectCount
		totalHighRisk += m.HighRiskSubjectCount
		for _, c := range metrics.AllCategories() {
			n := m.Count(c)
			totals[c] += n
			if n > 0 {
				presence[c]++
			}
		}
	}

	meanDQI, err := stats.Mean(dqis)
	if err == nil {
		baseline.MeanDQI = meanDQI
	}
	baseline.SubjectCount = totalSubjects
	if totalSubjects > 0 {
		baseline.HighRiskRate = float64(totalHighRisk) / float64(totalSubjects)
	}
	n := float64(len(sites))
	for _, c := range metrics.AllCategories() {
		baseline.Prevalence[c] = float64(presence[c]) / n
		baseline.MeanRates[c] = float64(totals[c]) / n
	}
	return baseline
}
