package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nvandessel/gkmerge/internal/experiment"
)

// InMemoryResultStore implements ResultStore for testing and for the MCP
// server's session results.
type InMemoryResultStore struct {
	mu      sync.RWMutex
	results map[string]*experiment.Result
}

// NewInMemoryResultStore creates a new in-memory store.
func NewInMemoryResultStore() *InMemoryResultStore {
	return &InMemoryResultStore{results: make(map[string]*experiment.Result)}
}

// Save stores a copy of the result, replacing any result with the same id.
func (s *InMemoryResultStore) Save(ctx context.Context, res *experiment.Result) error {
	if err := validate(res); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.ID] = clone(res)
	return nil
}

// Get returns a copy of the result with the given id.
func (s *InMemoryResultStore) Get(ctx context.Context, id string) (*experiment.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return clone(res), nil
}

// List returns summaries newest first.
func (s *InMemoryResultStore) List(ctx context.Context, filter Filter) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.results))
	for _, res := range s.results {
		if filter.Kind != "" && res.Kind != filter.Kind {
			continue
		}
		out = append(out, summarize(res))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete removes a result.
func (s *InMemoryResultStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	delete(s.results, id)
	return nil
}

// Close is a no-op.
func (s *InMemoryResultStore) Close() error { return nil }

func clone(res *experiment.Result) *experiment.Result {
	c := *res
	c.Attributes = make(map[string]any, len(res.Attributes))
	for k, v := range res.Attributes {
		c.Attributes[k] = v
	}
	c.Points = make([]experiment.Point, len(res.Points))
	for i, p := range res.Points {
		c.Points[i] = experiment.Point{X: p.X, Runs: append([]experiment.RunData(nil), p.Runs...)}
	}
	return &c
}
