package ports

import (
	"context"

	"siterisk/domain/core"
	"siterisk/domain/metrics"
	"siterisk/domain/run"
)

// RunStore persists completed run results for downstream consumers. The
// scoring core never depends on it; persistence is the collaborator's
// concern.
type RunStore interface {
	SaveRun(ctx context.Context, result *run.Result) error
	GetRun(ctx context.Context, id core.RunID) (*run.Result, error)
	ListRuns(ctx context.Context, limit int) ([]run.Manifest, error)
}

// EventSource supplies raw event-level records from a source clinical
// system.
type EventSource interface {
	ReadEvents(ctx context.Context) ([]metrics.RawEvent, error)
}
