package app

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"siterisk/domain/core"
	"siterisk/domain/insight"
	"siterisk/domain/metrics"
	"siterisk/domain/run"
	"siterisk/internal"
	"siterisk/internal/aggregate"
	"siterisk/internal/cohort"
	"siterisk/internal/config"
	"siterisk/internal/cooccur"
	"siterisk/internal/errors"
	"siterisk/internal/mining"
	"siterisk/internal/scoring"
	"siterisk/ports"
)

// PipelineService executes the full scoring and mining pipeline: aggregate,
// score each site independently, then run the three global stages behind a
// single synchronization barrier once the per-site pass completes.
type PipelineService struct {
	cfg    *config.Config
	store  ports.RunStore
	logger *internal.Logger
}

// NewPipelineService creates a pipeline service. The store may be nil when
// callers only want the in-memory result.
func NewPipelineService(cfg *config.Config, store ports.RunStore, logger *internal.Logger) (*PipelineService, error) {
	if cfg == nil {
		return nil, errors.ConfigInvalid("pipeline configuration is required")
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &PipelineService{cfg: cfg, store: store, logger: logger}, nil
}

// Run aggregates raw events and executes every downstream stage, returning
// the fingerprinted result. Site validation failures exclude the site and
// the run continues; only configuration problems abort.
func (s *PipelineService) Run(ctx context.Context, events []metrics.RawEvent) (*run.Result, error) {
	sites, exclusions := aggregate.Aggregate(events)
	return s.RunOnMetrics(ctx, sites, exclusions)
}

// RunOnMetrics executes the pipeline over pre-aggregated site metrics.
// Re-running on identical metrics yields a byte-identical fingerprint.
func (s *PipelineService) RunOnMetrics(ctx context.Context, sites []metrics.SiteMetrics,
	exclusions []metrics.Exclusion) (*run.Result, error) {

	started := time.Now()
	runID := core.RunID(core.NewID())

	for _, ex := range exclusions {
		s.logger.Warn("site %s/%s excluded from run: %s", ex.StudyID, ex.SiteID, ex.Reason)
	}

	baseline := aggregate.ComputeBaseline(sites, s.cfg.Risk)

	// Per-site scoring is embarrassingly parallel: no shared mutable state,
	// output slots preallocated so collection order never depends on
	// goroutine scheduling.
	scores := make([]run.SiteResult, len(sites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range sites {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			composite, domains := scoring.ScoreSite(sites[i], baseline, s.cfg.Risk)
			scores[i] = run.SiteResult{Composite: composite, Domains: domains}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "per-site scoring failed")
	}

	// Barrier passed: the global stages need the completed site population.
	pairs := cooccur.Analyze(sites)
	rootCauses := mining.Mine(sites, pairs, baseline, s.cfg.Risk)

	cohorts := make(map[insight.CohortDimension][]insight.CohortAggregate)
	var suppressed []insight.SuppressedCohort
	for _, dim := range insight.AllDimensions() {
		kept, supp := cohort.Detect(sites, dim, baseline, s.cfg.Risk)
		cohorts[dim] = kept
		suppressed = append(suppressed, supp...)
	}

	result := &run.Result{
		RunID:      runID,
		Sites:      sites,
		Exclusions: exclusions,
		Baseline:   baseline,
		Scores:     scores,
		Pairs:      pairs,
		RootCauses: rootCauses,
		Cohorts:    cohorts,
		Suppressed: suppressed,
	}

	fingerprint, err := result.ComputeFingerprint()
	if err != nil {
		return nil, errors.Wrap(err, "fingerprint computation failed")
	}
	result.Fingerprint = fingerprint
	result.Manifest = run.Manifest{
		RunID:          runID,
		CreatedAt:      started.UTC(),
		RuntimeMs:      time.Since(started).Milliseconds(),
		SiteCount:      len(sites),
		ExcludedCount:  len(exclusions),
		PairCount:      len(pairs),
		RootCauseCount: len(rootCauses),
	}

	if s.store != nil {
		if err := s.store.SaveRun(ctx, result); err != nil {
			return nil, errors.Wrap(err, "failed to persist run")
		}
	}

	s.logger.Info("run %s scored %d sites (%d excluded, %d pairs, %d root causes) in %dms",
		runID, len(sites), len(exclusions), len(pairs), len(rootCauses), result.Manifest.RuntimeMs)
	return result, nil
}

// RunFromSource reads events from a source adapter and executes the
// pipeline.
func (s *PipelineService) RunFromSource(ctx context.Context, source ports.EventSource) (*run.Result, error) {
	events, err := source.ReadEvents(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read events")
	}
	return s.Run(ctx, events)
}
