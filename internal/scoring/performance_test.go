package scoring

import (
	"math"
	"testing"

	"siterisk/domain/metrics"
	"siterisk/domain/risk"
	"siterisk/internal/config"
)

func baselineWithMeanDQI(mean float64) metrics.PortfolioBaseline {
	return metrics.PortfolioBaseline{
		SiteCount: 20,
		MeanDQI:   mean,
	}
}

func TestScorePerformance_AtThreeTimesPortfolioIsCritical(t *testing.T) {
	r := config.DefaultRisk()
	m := site(map[metrics.IssueCategory]int{metrics.CategoryMissingPages: 20})
	siteDQI := RawDQI(m, r.DataQuality)

	ds := ScorePerformance(m, baselineWithMeanDQI(siteDQI/3.0), r.DataQuality, r.Performance)

	if ds.Level != risk.LevelCritical {
		t.Fatalf("level = %s, want CRITICAL at 3x portfolio", ds.Level)
	}
	if ds.KeyFinding.Code != risk.FindingDQIVsPortfolio {
		t.Errorf("finding = %s, want %s", ds.KeyFinding.Code, risk.FindingDQIVsPortfolio)
	}
	if math.Abs(ds.KeyFinding.Value-3.0) > 1e-9 {
		t.Errorf("multiple = %f, want 3.0", ds.KeyFinding.Value)
	}
	// The normalization puts the critical multiple exactly at 0.5.
	if math.Abs(ds.Score-0.5) > 1e-9 {
		t.Errorf("score = %f, want 0.5", ds.Score)
	}
}

func TestScorePerformance_NearPortfolioIsWithinExpected(t *testing.T) {
	r := config.DefaultRisk()
	m := site(map[metrics.IssueCategory]int{metrics.CategoryMissingPages: 5})
	siteDQI := RawDQI(m, r.DataQuality)

	ds := ScorePerformance(m, baselineWithMeanDQI(siteDQI), r.DataQuality, r.Performance)

	if ds.Level != risk.LevelLow {
		t.Errorf("level = %s, want LOW at 1x portfolio", ds.Level)
	}
	if ds.KeyFinding.Code != risk.FindingWithinExpected {
		t.Errorf("finding = %s, want %s", ds.KeyFinding.Code, risk.FindingWithinExpected)
	}
}

func TestScorePerformance_BelowFloorEscalatesAsUnderReporting(t *testing.T) {
	r := config.DefaultRisk()

	// A zero-issue site in a busy portfolio sits at multiple 0, far under
	// the low floor: an escalation trigger, not a clean bill of health.
	ds := ScorePerformance(site(nil), baselineWithMeanDQI(5.0), r.DataQuality, r.Performance)

	if ds.Level != risk.LevelCritical {
		t.Fatalf("level = %s, want CRITICAL below the low floor", ds.Level)
	}
	if ds.KeyFinding.Code != risk.FindingSuspectedUnderReporting {
		t.Errorf("finding = %s, want %s", ds.KeyFinding.Code, risk.FindingSuspectedUnderReporting)
	}
	if ds.KeyFinding.Value != 0 {
		t.Errorf("multiple = %f, want 0", ds.KeyFinding.Value)
	}

	// Just under the floor trips the same branch.
	m := site(map[metrics.IssueCategory]int{metrics.CategoryMissingPages: 1})
	siteDQI := RawDQI(m, r.DataQuality)
	ds = ScorePerformance(m, baselineWithMeanDQI(siteDQI/(r.Performance.LowFloor-0.01)),
		r.DataQuality, r.Performance)
	if ds.Level != risk.LevelCritical {
		t.Errorf("level = %s, want CRITICAL just under the floor", ds.Level)
	}

	// At the floor exactly the site is within expected parameters.
	ds = ScorePerformance(m, baselineWithMeanDQI(siteDQI/r.Performance.LowFloor),
		r.DataQuality, r.Performance)
	if ds.Level != risk.LevelLow {
		t.Errorf("level = %s, want LOW at the floor", ds.Level)
	}
}

func TestScorePerformance_ZeroBaselineDefaultsToParity(t *testing.T) {
	r := config.DefaultRisk()
	m := site(map[metrics.IssueCategory]int{metrics.CategoryMissingPages: 5})

	ds := ScorePerformance(m, metrics.PortfolioBaseline{}, r.DataQuality, r.Performance)

	if ds.KeyFinding.Value != 1.0 {
		t.Errorf("multiple = %f, want 1.0 against an empty baseline", ds.KeyFinding.Value)
	}
	if ds.Level != risk.LevelLow {
		t.Errorf("level = %s, want LOW", ds.Level)
	}
}
