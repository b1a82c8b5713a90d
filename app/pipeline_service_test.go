package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siterisk/adapters/memory"
	"siterisk/domain/core"
	"siterisk/domain/metrics"
	"siterisk/internal/config"
)

func intp(v int) *int { return &v }

func testEvents() []metrics.RawEvent {
	var events []metrics.RawEvent
	for i := 0; i < 12; i++ {
		siteID := core.SiteID(fmt.Sprintf("%04d", 1000+i))
		country := "Germany"
		if i >= 8 {
			country = "Japan"
		}
		for s := 0; s < 5; s++ {
			events = append(events, metrics.RawEvent{
				StudyID:   "STUDY-1",
				SiteID:    siteID,
				Country:   country,
				Region:    "Global",
				SubjectID: fmt.Sprintf("SUBJ-%d-%d", i, s),
				HighRisk:  s == 0,
			})
		}
		events = append(events,
			metrics.RawEvent{StudyID: "STUDY-1", SiteID: siteID, Country: country, Region: "Global",
				Category: metrics.CategoryMissingPages, Value: intp(2 + i)},
			metrics.RawEvent{StudyID: "STUDY-1", SiteID: siteID, Country: country, Region: "Global",
				Category: metrics.CategoryMaxDaysOutstanding, Value: intp(10 * i)},
		)
		if i%3 == 0 {
			events = append(events, metrics.RawEvent{
				StudyID: "STUDY-1", SiteID: siteID, Country: country, Region: "Global",
				Category: metrics.CategorySAEPending, Value: intp(2),
			})
		}
	}
	// One site with corrupt data: excluded, never fatal.
	events = append(events, metrics.RawEvent{
		StudyID: "STUDY-1", SiteID: "9999", Country: "Germany", Region: "Global",
		Category: metrics.CategoryLabIssues, Value: intp(-4),
	})
	return events
}

func newTestPipeline(t *testing.T) *PipelineService {
	t.Helper()
	svc, err := NewPipelineService(config.Default(), memory.NewRunStore(), nil)
	require.NoError(t, err)
	return svc
}

func TestNewPipelineService_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Risk.Weights.Safety = 0.9

	_, err := NewPipelineService(cfg, nil, nil)
	require.Error(t, err)

	_, err = NewPipelineService(nil, nil, nil)
	require.Error(t, err)
}

func TestRun_EndToEnd(t *testing.T) {
	svc := newTestPipeline(t)

	result, err := svc.Run(context.Background(), testEvents())
	require.NoError(t, err)

	assert.Len(t, result.Sites, 12)
	require.Len(t, result.Exclusions, 1)
	assert.Equal(t, "9999", string(result.Exclusions[0].SiteID))

	require.Len(t, result.Scores, len(result.Sites), "one score per surviving site")
	for i, sr := range result.Scores {
		assert.Equal(t, result.Sites[i].SiteID, sr.Composite.SiteID, "scores align with site order")
		assert.Len(t, sr.Domains, 3)
		assert.GreaterOrEqual(t, sr.Composite.OverallScore, 0.0)
		assert.LessOrEqual(t, sr.Composite.OverallScore, 1.0)
	}

	assert.NotEmpty(t, result.Pairs)
	assert.NotEmpty(t, result.Fingerprint)
	assert.Len(t, result.Cohorts, 4, "one cohort view per dimension")

	assert.Equal(t, result.RunID, result.Manifest.RunID)
	assert.Equal(t, 12, result.Manifest.SiteCount)
	assert.Equal(t, 1, result.Manifest.ExcludedCount)
}

func TestRun_IdenticalInputsReproduceTheFingerprint(t *testing.T) {
	svc := newTestPipeline(t)
	ctx := context.Background()

	first, err := svc.Run(ctx, testEvents())
	require.NoError(t, err)
	second, err := svc.Run(ctx, testEvents())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID, "each run gets its own identity")
	assert.Equal(t, first.Fingerprint, second.Fingerprint,
		"identical inputs must produce identical derived artifacts")
}

func TestRun_PersistsToStore(t *testing.T) {
	store := memory.NewRunStore()
	svc, err := NewPipelineService(config.Default(), store, nil)
	require.NoError(t, err)

	result, err := svc.Run(context.Background(), testEvents())
	require.NoError(t, err)

	loaded, err := store.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.Fingerprint, loaded.Fingerprint)

	manifests, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, result.RunID, manifests[0].RunID)
}

func TestRun_CancelledContext(t *testing.T) {
	svc := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, testEvents())
	require.Error(t, err)
}

func TestRunOnMetrics_EmptyPopulation(t *testing.T) {
	svc := newTestPipeline(t)

	result, err := svc.RunOnMetrics(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Scores)
	assert.Empty(t, result.Pairs)
	assert.NotEmpty(t, result.Fingerprint, "even an empty run is fingerprinted")
}
