package mining

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siterisk/domain/core"
	"siterisk/domain/insight"
	"siterisk/domain/metrics"
	"siterisk/internal/aggregate"
	"siterisk/internal/config"
	"siterisk/internal/cooccur"
)

func miningSite(id, country string, counts map[metrics.IssueCategory]int) metrics.SiteMetrics {
	return metrics.SiteMetrics{
		StudyID:      "STUDY-1",
		SiteID:       core.SiteID(id),
		Country:      country,
		Region:       "Region-1",
		SubjectCount: 25,
		IssueCounts:  counts,
	}
}

func mine(t *testing.T, sites []metrics.SiteMetrics) []insight.RootCause {
	t.Helper()
	cfg := config.DefaultRisk()
	baseline := aggregate.ComputeBaseline(sites, cfg)
	pairs := cooccur.Analyze(sites)
	return Mine(sites, pairs, baseline, cfg)
}

func TestMine_RareCategoryBelowPrevalenceFloorIgnored(t *testing.T) {
	// lab_issues at 1 of 20 sites: 5% prevalence, under the 15% floor.
	var sites []metrics.SiteMetrics
	for i := 0; i < 20; i++ {
		counts := map[metrics.IssueCategory]int{metrics.CategoryMissingPages: 4}
		if i == 0 {
			counts[metrics.CategoryLabIssues] = 2
		}
		sites = append(sites, miningSite(fmt.Sprintf("S%03d", i), "Base", counts))
	}

	causes := mine(t, sites)
	for _, rc := range causes {
		for _, c := range rc.Categories {
			assert.NotEqual(t, metrics.CategoryLabIssues, c,
				"below-floor category must not seed or join a cause")
		}
	}
}

func TestMine_HighLiftCandidatesMergeIntoOneCause(t *testing.T) {
	// Both coding categories appear together at 4 of 10 sites and nowhere
	// apart: lift = 4*10/(4*4) = 2.5, above the 2.0 merge threshold.
	var sites []metrics.SiteMetrics
	for i := 0; i < 10; i++ {
		counts := map[metrics.IssueCategory]int{}
		if i < 4 {
			counts[metrics.CategoryUncodedMedDRA] = 5 + i
			counts[metrics.CategoryUncodedWHODD] = 3 + i
		}
		sites = append(sites, miningSite(fmt.Sprintf("S%03d", i), "Base", counts))
	}

	causes := mine(t, sites)
	require.Len(t, causes, 1)

	rc := causes[0]
	assert.ElementsMatch(t, []metrics.IssueCategory{
		metrics.CategoryUncodedMedDRA,
		metrics.CategoryUncodedWHODD,
	}, rc.Categories)
	assert.Equal(t, insight.ScopePortfolio, rc.Scope)
	assert.Equal(t, 4, rc.AffectedSiteCount)
	assert.Equal(t, insight.SeverityCritical, rc.Severity, "40 percent of sites affected")
	assert.Contains(t, rc.Label, "coding")
	assert.NotEmpty(t, rc.ContributingFactors)
}

func TestMine_IndependentCandidatesStaySeparate(t *testing.T) {
	// Two prevalent categories with no co-occurrence at all.
	var sites []metrics.SiteMetrics
	for i := 0; i < 10; i++ {
		counts := map[metrics.IssueCategory]int{}
		if i < 4 {
			counts[metrics.CategoryMissingPages] = 6
		} else if i < 8 {
			counts[metrics.CategoryEDRROpen] = 3
		}
		sites = append(sites, miningSite(fmt.Sprintf("S%03d", i), "Base", counts))
	}

	causes := mine(t, sites)
	require.Len(t, causes, 2, "disjoint candidates must not merge")
	for _, rc := range causes {
		assert.Len(t, rc.Categories, 1)
	}
}

func TestMine_ConfidenceAndCountsBounded(t *testing.T) {
	var sites []metrics.SiteMetrics
	for i := 0; i < 30; i++ {
		counts := map[metrics.IssueCategory]int{}
		if i%2 == 0 {
			counts[metrics.CategoryMissingVisit] = 3
			counts[metrics.CategoryMissingPages] = 8
		}
		if i%3 == 0 {
			counts[metrics.CategoryUncodedMedDRA] = 2
		}
		sites = append(sites, miningSite(fmt.Sprintf("S%03d", i), "Base", counts))
	}

	causes := mine(t, sites)
	require.NotEmpty(t, causes)
	for _, rc := range causes {
		assert.GreaterOrEqual(t, rc.Confidence, 0.0, "%s", rc.ID)
		assert.LessOrEqual(t, rc.Confidence, 1.0, "%s", rc.ID)
		assert.LessOrEqual(t, rc.AffectedSiteCount, len(sites), "%s", rc.ID)
		assert.NotEmpty(t, rc.Evidence, "%s", rc.ID)
	}
}

func TestMine_GeographicConcentration(t *testing.T) {
	// Three sites in one small country carry a heavy lab_issues load; the
	// rest of the portfolio has none.
	var sites []metrics.SiteMetrics
	for i := 0; i < 17; i++ {
		sites = append(sites, miningSite(fmt.Sprintf("S%03d", i), "Base",
			map[metrics.IssueCategory]int{metrics.CategoryMissingPages: 3}))
	}
	for i := 0; i < 3; i++ {
		sites = append(sites, miningSite(fmt.Sprintf("Z%03d", i), "Islandia",
			map[metrics.IssueCategory]int{metrics.CategoryLabIssues: 10}))
	}

	causes := mine(t, sites)

	var geo *insight.RootCause
	for i := range causes {
		if causes[i].Scope == insight.ScopeGeographic {
			require.Nil(t, geo, "expected exactly one geographic cause")
			geo = &causes[i]
		}
	}
	require.NotNil(t, geo, "expected a geographic root cause")
	assert.Equal(t, "Islandia", geo.Country)
	assert.Equal(t, []metrics.IssueCategory{metrics.CategoryLabIssues}, geo.Categories)
	assert.Equal(t, 3, geo.AffectedSiteCount)
	assert.Contains(t, geo.Label, "Islandia")
	assert.GreaterOrEqual(t, geo.Confidence, 0.0)
	assert.LessOrEqual(t, geo.Confidence, 1.0)
}

func TestMine_LargeCountryNeverGeographic(t *testing.T) {
	// The same concentration spread across 15 sites exceeds the small-country
	// ceiling: a portfolio-wide pattern, not a localized one.
	var sites []metrics.SiteMetrics
	for i := 0; i < 17; i++ {
		sites = append(sites, miningSite(fmt.Sprintf("S%03d", i), "Base",
			map[metrics.IssueCategory]int{metrics.CategoryMissingPages: 3}))
	}
	for i := 0; i < 15; i++ {
		sites = append(sites, miningSite(fmt.Sprintf("Z%03d", i), "Bigland",
			map[metrics.IssueCategory]int{metrics.CategoryLabIssues: 10}))
	}

	for _, rc := range mine(t, sites) {
		assert.NotEqual(t, insight.ScopeGeographic, rc.Scope,
			"country above the site ceiling must not produce a geographic cause")
	}
}

func TestMine_OrderedBySeverityThenReach(t *testing.T) {
	var sites []metrics.SiteMetrics
	for i := 0; i < 20; i++ {
		counts := map[metrics.IssueCategory]int{}
		if i < 10 {
			counts[metrics.CategoryMissingPages] = 5
		}
		if i < 3 {
			counts[metrics.CategoryEDRROpen] = 2
		}
		sites = append(sites, miningSite(fmt.Sprintf("S%03d", i), "Base", counts))
	}

	causes := mine(t, sites)
	require.NotEmpty(t, causes)
	for i := 1; i < len(causes); i++ {
		prev, cur := causes[i-1], causes[i]
		if prev.Severity == cur.Severity {
			assert.GreaterOrEqual(t, prev.AffectedSiteCount, cur.AffectedSiteCount)
		}
	}
}

func TestMine_EmptyPortfolio(t *testing.T) {
	assert.Nil(t, mine(t, nil))
}
