package scoring

import (
	"sort"

	"siterisk/domain/metrics"
	"siterisk/domain/risk"
	"siterisk/internal/config"
)

// ScoreSite runs all three domain scorers for one site and combines them
// into a composite risk score. Pure: identical inputs always produce
// identical outputs, and sites can be scored independently in parallel.
func ScoreSite(m metrics.SiteMetrics, baseline metrics.PortfolioBaseline,
	cfg config.RiskConfig) (risk.CompositeRiskScore, []risk.DomainScore) {

	safety := ScoreSafety(m, cfg.Safety)
	dq := ScoreDataQuality(m, cfg.DataQuality)
	perf := ScorePerformance(m, baseline, cfg.DataQuality, cfg.Performance)
	domains := []risk.DomainScore{safety, dq, perf}

	overall := cfg.Weights.Safety*safety.Score +
		cfg.Weights.DataQuality*dq.Score +
		cfg.Weights.Performance*perf.Score
	overall = clamp01(overall)

	priority := levelFromCutPoints(overall, cfg.CutPoints)

	composite := risk.CompositeRiskScore{
		StudyID:      m.StudyID,
		SiteID:       m.SiteID,
		OverallScore: overall,
		Priority:     priority,
		Actions:      assembleActions(m, baseline, priority, cfg.Actions),
	}
	return composite, domains
}

// assembleActions builds the deduplicated, priority-ordered action list:
// category templates whose triggering count is positive, ordered by severity
// rank with portfolio prevalence breaking ties within a rank, followed by
// the fixed process scaffold for CRITICAL and HIGH sites. An empty list is
// a valid result, never an error.
func assembleActions(m metrics.SiteMetrics, baseline metrics.PortfolioBaseline,
	priority risk.Level, cfg config.ActionConfig) []risk.RecommendedAction {

	var triggered []risk.RecommendedAction
	for _, c := range metrics.AllCategories() {
		tmpl, ok := cfg.Templates[c]
		if !ok || m.Count(c) == 0 {
			continue
		}
		triggered = append(triggered, risk.RecommendedAction{
			Text:           tmpl.Text,
			SourceCategory: c,
			SeverityRank:   tmpl.SeverityRank,
		})
	}

	sort.SliceStable(triggered, func(i, j int) bool {
		if triggered[i].SeverityRank != triggered[j].SeverityRank {
			return triggered[i].SeverityRank < triggered[j].SeverityRank
		}
		pi := baseline.PrevalenceOf(triggered[i].SourceCategory)
		pj := baseline.PrevalenceOf(triggered[j].SourceCategory)
		if pi != pj {
			return pi > pj
		}
		return triggered[i].SourceCategory < triggered[j].SourceCategory
	})

	actions := dedupeByText(triggered)

	if priority == risk.LevelCritical || priority == risk.LevelHigh {
		for _, text := range cfg.Scaffold {
			actions = append(actions, risk.RecommendedAction{
				Text:         text,
				SeverityRank: config.RankScaffold,
			})
		}
	}
	return actions
}

func dedupeByText(actions []risk.RecommendedAction) []risk.RecommendedAction {
	seen := make(map[string]bool, len(actions))
	out := actions[:0:0]
	for _, a := range actions {
		if seen[a.Text] {
			continue
		}
		seen[a.Text] = true
		out = append(out, a)
	}
	return out
}
