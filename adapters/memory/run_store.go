package memory

import (
	"context"
	"sort"
	"sync"

	"siterisk/domain/core"
	"siterisk/domain/run"
	"siterisk/internal/errors"
	"siterisk/ports"
)

// RunStore keeps run results in memory. Used when no database is configured
// and in tests.
type RunStore struct {
	mu   sync.RWMutex
	runs map[core.RunID]*run.Result
}

// NewRunStore creates an empty in-memory run store.
func NewRunStore() ports.RunStore {
	return &RunStore{runs: make(map[core.RunID]*run.Result)}
}

func (s *RunStore) SaveRun(_ context.Context, result *run.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[result.RunID] = result
	return nil
}

func (s *RunStore) GetRun(_ context.Context, id core.RunID) (*run.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.runs[id]
	if !ok {
		return nil, errors.NotFound("run")
	}
	return result, nil
}

func (s *RunStore) ListRuns(_ context.Context, limit int) ([]run.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	manifests := make([]run.Manifest, 0, len(s.runs))
	for _, r := range s.runs {
		manifests = append(manifests, r.Manifest)
	}
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].CreatedAt.After(manifests[j].CreatedAt)
	})
	if limit > 0 && len(manifests) > limit {
		manifests = manifests[:limit]
	}
	return manifests, nil
}
