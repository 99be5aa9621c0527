package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cognicore/conceptmine/pkg/conceptmine/aggregate"
	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
	"github.com/cognicore/conceptmine/pkg/conceptmine/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu   sync.RWMutex
	runs map[string]store.Run
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{runs: make(map[string]store.Run)}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// SaveRun stores r, replacing any run with the same ID.
func (s *Store) SaveRun(ctx context.Context, r store.Run) error {
	if r.ID == "" {
		return fmt.Errorf("%w: run id required", internalerr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = copyRun(r)
	return nil
}

// GetRun returns run metadata.
func (s *Store) GetRun(ctx context.Context, id string) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return store.Run{}, fmt.Errorf("run %s: %w", id, internalerr.ErrNotFound)
	}
	return summary(r), nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, summary(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Concepts returns the run's table rows matching f.
func (s *Store) Concepts(ctx context.Context, runID string, f store.ConceptFilter) ([]aggregate.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, internalerr.ErrNotFound)
	}
	return store.FilterRows(r.Rows, f), nil
}

// TopConcepts ranks the run's concepts by the number of articles using them.
func (s *Store) TopConcepts(ctx context.Context, runID string, k int) ([]store.ConceptSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, internalerr.ErrNotFound)
	}
	return store.RankConcepts(r.Rows, k), nil
}

// Failures returns the run's recorded failures.
func (s *Store) Failures(ctx context.Context, runID string) ([]store.Failure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, internalerr.ErrNotFound)
	}
	return append([]store.Failure(nil), r.Failures...), nil
}

func summary(r store.Run) store.Run {
	r.Rows = nil
	r.Failures = nil
	return r
}

func copyRun(r store.Run) store.Run {
	out := r
	out.Rows = append([]aggregate.Row(nil), r.Rows...)
	sort.Slice(out.Rows, func(i, j int) bool {
		if out.Rows[i].ArticleID != out.Rows[j].ArticleID {
			return out.Rows[i].ArticleID < out.Rows[j].ArticleID
		}
		return out.Rows[i].Concept < out.Rows[j].Concept
	})
	out.Failures = append([]store.Failure(nil), r.Failures...)
	return out
}
