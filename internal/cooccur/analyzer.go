package cooccur

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"siterisk/domain/insight"
	"siterisk/domain/metrics"
)

// Analyze computes pairwise lift and Pearson correlation between issue
// categories across the full site population. Presence (count > 0) is the
// lift event; correlation runs on the raw per-site counts. Pairs where
// either category never occurs portfolio-wide are excluded, which also rules
// out division by zero. Output is sorted by descending lift, ties broken by
// descending |correlation|, then canonically by category names so runs are
// byte-identical.
func Analyze(sites []metrics.SiteMetrics) []insight.CoOccurrencePair {
	n := len(sites)
	if n == 0 {
		return nil
	}

	categories := metrics.AllCategories()
	counts := make(map[metrics.IssueCategory][]float64, len(categories))
	presence := make(map[metrics.IssueCategory]int, len(categories))
	for _, c := range categories {
		col := make([]float64, n)
		for i, m := range sites {
			v := m.Count(c)
			col[i] = float64(v)
			if v > 0 {
				presence[c]++
			}
		}
		counts[c] = col
	}

	var pairs []insight.CoOccurrencePair
	for i := 0; i < len(categories); i++ {
		for j := i + 1; j < len(categories); j++ {
			a, b := insight.NewPairKey(categories[i], categories[j])
			if presence[a] == 0 || presence[b] == 0 {
				continue // lift undefined without any occurrence
			}

			both := 0
			for _, m := range sites {
				if m.HasIssue(a) && m.HasIssue(b) {
					both++
				}
			}

			// lift = P(A and B) / (P(A) * P(B)) = both * N / (nA * nB)
			lift := float64(both) * float64(n) / (float64(presence[a]) * float64(presence[b]))

			corr := stat.Correlation(counts[a], counts[b], nil)
			if math.IsNaN(corr) {
				corr = 0 // zero variance in one of the count vectors
			}

			pairs = append(pairs, insight.CoOccurrencePair{
				CategoryA:     a,
				CategoryB:     b,
				Lift:          lift,
				Correlation:   corr,
				PValue:        correlationPValue(corr, n),
				SitesWithA:    presence[a],
				SitesWithB:    presence[b],
				SitesWithBoth: both,
				SampleSize:    n,
				Tag:           insight.InterpretPair(a, b),
			})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Lift != pairs[j].Lift {
			return pairs[i].Lift > pairs[j].Lift
		}
		ai, aj := math.Abs(pairs[i].Correlation), math.Abs(pairs[j].Correlation)
		if ai != aj {
			return ai > aj
		}
		if pairs[i].CategoryA != pairs[j].CategoryA {
			return pairs[i].CategoryA < pairs[j].CategoryA
		}
		return pairs[i].CategoryB < pairs[j].CategoryB
	})
	return pairs
}

// TopLiftFor returns the strongest co-occurring partner of a category, if
// any pair involving it exists.
func TopLiftFor(pairs []insight.CoOccurrencePair, c metrics.IssueCategory) (insight.CoOccurrencePair, bool) {
	// pairs are already sorted by descending lift
	for _, p := range pairs {
		if p.CategoryA == c || p.CategoryB == c {
			return p, true
		}
	}
	return insight.CoOccurrencePair{}, false
}

// correlationPValue computes the two-sided significance of a Pearson r via
// the t-distribution with n-2 degrees of freedom.
func correlationPValue(r float64, n int) float64 {
	if n < 3 {
		return 1.0
	}
	absR := math.Abs(r)
	if absR >= 1 {
		return 0.0
	}
	if absR == 0 {
		return 1.0
	}
	df := float64(n - 2)
	t := absR * math.Sqrt(df/(1-absR*absR))
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * tDist.Survival(t)
	if p > 1 {
		p = 1
	}
	return p
}
