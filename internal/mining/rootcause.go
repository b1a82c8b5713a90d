package mining

import (
	"fmt"
	"sort"
	"strings"

	"siterisk/domain/insight"
	"siterisk/domain/metrics"
	"siterisk/internal/cohort"
	"siterisk/internal/config"
	"siterisk/internal/cooccur"
)

// Mine clusters correlated, co-dominant issue categories into named root
// causes. Candidates are categories above the prevalence floor; candidates
// whose pairwise lift exceeds the merge threshold collapse into one cause
// spanning their category set. Confidence rises with prevalence and with the
// strength of the top co-occurring lift (a structural pattern rather than an
// incidental one); a category with no usable co-occurrence data is still
// eligible on prevalence alone.
func Mine(sites []metrics.SiteMetrics, pairs []insight.CoOccurrencePair,
	baseline metrics.PortfolioBaseline, cfg config.RiskConfig) []insight.RootCause {

	n := len(sites)
	if n == 0 {
		return nil
	}

	candidates := candidateCategories(baseline, cfg.RootCause)
	clusters := mergeByLift(candidates, pairs, cfg.RootCause.MergeLiftThreshold)

	var causes []insight.RootCause
	for _, cluster := range clusters {
		causes = append(causes, buildCause(cluster, sites, pairs, baseline, cfg.RootCause))
	}
	causes = append(causes, geographicCauses(sites, baseline, cfg)...)

	sort.SliceStable(causes, func(i, j int) bool {
		si, sj := severityRank(causes[i].Severity), severityRank(causes[j].Severity)
		if si != sj {
			return si < sj
		}
		if causes[i].AffectedSiteCount != causes[j].AffectedSiteCount {
			return causes[i].AffectedSiteCount > causes[j].AffectedSiteCount
		}
		return causes[i].ID < causes[j].ID
	})
	return causes
}

// candidateCategories returns categories above the prevalence floor, ordered
// by descending prevalence with canonical name tiebreak.
func candidateCategories(baseline metrics.PortfolioBaseline, cfg config.RootCauseConfig) []metrics.IssueCategory {
	var candidates []metrics.IssueCategory
	for _, c := range metrics.AllCategories() {
		if baseline.PrevalenceOf(c) >= cfg.PrevalenceFloor {
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := baseline.PrevalenceOf(candidates[i]), baseline.PrevalenceOf(candidates[j])
		if pi != pj {
			return pi > pj
		}
		return candidates[i] < candidates[j]
	})
	return candidates
}

// mergeByLift unions candidates whose pairwise lift clears the merge
// threshold. Plain union-find over the candidate set; each resulting cluster
// becomes one root cause.
func mergeByLift(candidates []metrics.IssueCategory, pairs []insight.CoOccurrencePair,
	threshold float64) [][]metrics.IssueCategory {

	inSet := make(map[metrics.IssueCategory]bool, len(candidates))
	parent := make(map[metrics.IssueCategory]metrics.IssueCategory, len(candidates))
	for _, c := range candidates {
		inSet[c] = true
		parent[c] = c
	}

	var find func(c metrics.IssueCategory) metrics.IssueCategory
	find = func(c metrics.IssueCategory) metrics.IssueCategory {
		if parent[c] != c {
			parent[c] = find(parent[c])
		}
		return parent[c]
	}

	for _, p := range pairs {
		if p.Lift < threshold || !inSet[p.CategoryA] || !inSet[p.CategoryB] {
			continue
		}
		ra, rb := find(p.CategoryA), find(p.CategoryB)
		if ra != rb {
			parent[rb] = ra
		}
	}

	grouped := make(map[metrics.IssueCategory][]metrics.IssueCategory)
	for _, c := range candidates {
		root := find(c)
		grouped[root] = append(grouped[root], c)
	}

	// Preserve candidate (prevalence) order between clusters.
	var clusters [][]metrics.IssueCategory
	seen := make(map[metrics.IssueCategory]bool)
	for _, c := range candidates {
		root := find(c)
		if seen[root] {
			continue
		}
		seen[root] = true
		cluster := grouped[root]
		sort.Slice(cluster, func(i, j int) bool { return cluster[i] < cluster[j] })
		clusters = append(clusters, cluster)
	}
	return clusters
}

func buildCause(cluster []metrics.IssueCategory, sites []metrics.SiteMetrics,
	pairs []insight.CoOccurrencePair, baseline metrics.PortfolioBaseline,
	cfg config.RootCauseConfig) insight.RootCause {

	affected := 0
	for _, m := range sites {
		for _, c := range cluster {
			if m.HasIssue(c) {
				affected++
				break
			}
		}
	}

	topPrevalence := 0.0
	for _, c := range cluster {
		if p := baseline.PrevalenceOf(c); p > topPrevalence {
			topPrevalence = p
		}
	}

	evidence := []insight.Evidence{
		{Metric: "affected_site_count", Value: float64(affected)},
		{Metric: "affected_site_share", Value: float64(affected) / float64(len(sites))},
	}
	for _, c := range cluster {
		evidence = append(evidence, insight.Evidence{
			Metric: "prevalence", Value: baseline.PrevalenceOf(c), Category: c,
		})
	}

	// Confidence: prevalence of the strongest category plus a bounded boost
	// from its top co-occurring lift. Degrades to prevalence alone when no
	// co-occurrence pair involves the cluster.
	confidence := topPrevalence
	if top, ok := topLiftForCluster(cluster, pairs); ok && top.Lift > 1 {
		boost := 0.2 * minF((top.Lift-1)/cfg.MergeLiftThreshold, 1.0)
		confidence += boost
		partner := top.CategoryA
		if containsCategory(cluster, partner) && !containsCategory(cluster, top.CategoryB) {
			partner = top.CategoryB
		}
		evidence = append(evidence, insight.Evidence{
			Metric: "top_cooccurrence_lift", Value: top.Lift, Category: partner,
		})
	}
	if confidence > 1 {
		confidence = 1
	}

	share := float64(affected) / float64(len(sites))
	return insight.RootCause{
		ID:                  insight.RootCauseID(cluster),
		Label:               clusterLabel(cluster),
		Scope:               insight.ScopePortfolio,
		Categories:          cluster,
		Severity:            severityFromShare(share, cfg.SeverityBands),
		Confidence:          confidence,
		AffectedSiteCount:   affected,
		Evidence:            evidence,
		ContributingFactors: insight.ContributingFactorsFor(cluster),
	}
}

// geographicCauses emits a root cause per country whose dominant-issue ratio
// exceeds the geographic threshold with a small site footprint: a localized
// concentration, not a portfolio-wide mechanism.
func geographicCauses(sites []metrics.SiteMetrics, baseline metrics.PortfolioBaseline,
	cfg config.RiskConfig) []insight.RootCause {

	countries := cohort.BuildAggregates(sites, insight.DimensionCountry, baseline, cfg)

	var causes []insight.RootCause
	for _, agg := range countries {
		if agg.DominantCategory == "" ||
			agg.DominantRatio < cfg.RootCause.GeoDominanceRatio ||
			agg.SiteCount > cfg.RootCause.GeoMaxSites {
			continue
		}
		c := agg.DominantCategory
		share := float64(agg.SiteCount) / float64(len(sites))
		confidence := minF(agg.DominantRatio/(2*cfg.RootCause.GeoDominanceRatio), 1.0)
		causes = append(causes, insight.RootCause{
			ID:                insight.GeographicRootCauseID(agg.Key, c),
			Label:             fmt.Sprintf("Geographic concentration: %s in %s", c, agg.Key),
			Scope:             insight.ScopeGeographic,
			Country:           agg.Key,
			Categories:        []metrics.IssueCategory{c},
			Severity:          severityFromShare(share, cfg.RootCause.SeverityBands),
			Confidence:        confidence,
			AffectedSiteCount: agg.SiteCount,
			Evidence: []insight.Evidence{
				{Metric: "dominant_issue_ratio", Value: agg.DominantRatio, Category: c, Country: agg.Key},
				{Metric: "cohort_site_count", Value: float64(agg.SiteCount), Country: agg.Key},
			},
			ContributingFactors: insight.ContributingFactorsFor([]metrics.IssueCategory{c}),
		})
	}
	return causes
}

// clusterLabel names a cluster from its theme when uniform, otherwise as a
// cross-process pattern. Labels are fixed structure plus category names,
// never free-form narrative.
func clusterLabel(cluster []metrics.IssueCategory) string {
	names := make([]string, len(cluster))
	theme := insight.ThemeOf(cluster[0])
	uniform := true
	for i, c := range cluster {
		names[i] = string(c)
		if insight.ThemeOf(c) != theme {
			uniform = false
		}
	}
	joined := strings.Join(names, ", ")
	if uniform {
		return fmt.Sprintf("Systemic %s issue: %s", theme, joined)
	}
	return fmt.Sprintf("Cross-process issue: %s", joined)
}

func severityFromShare(share float64, bands config.RootCauseSeverityBands) insight.RootCauseSeverity {
	switch {
	case share >= bands.Critical:
		return insight.SeverityCritical
	case share >= bands.High:
		return insight.SeverityHigh
	case share >= bands.Medium:
		return insight.SeverityMedium
	default:
		return insight.SeverityLow
	}
}

func severityRank(s insight.RootCauseSeverity) int {
	switch s {
	case insight.SeverityCritical:
		return 0
	case insight.SeverityHigh:
		return 1
	case insight.SeverityMedium:
		return 2
	default:
		return 3
	}
}

// topLiftForCluster returns the highest-lift pair touching any cluster
// member.
func topLiftForCluster(cluster []metrics.IssueCategory, pairs []insight.CoOccurrencePair) (insight.CoOccurrencePair, bool) {
	var best insight.CoOccurrencePair
	found := false
	for _, c := range cluster {
		if p, ok := cooccur.TopLiftFor(pairs, c); ok && (!found || p.Lift > best.Lift) {
			best = p
			found = true
		}
	}
	return best, found
}

func containsCategory(set []metrics.IssueCategory, c metrics.IssueCategory) bool {
	for _, s := range set {
		if s == c {
			return true
		}
	}
	return false
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
