// Package store persists experiment results.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/gkmerge/internal/experiment"
)

// ErrNotFound is returned when no result has the requested id.
var ErrNotFound = errors.New("result not found")

// Summary describes a stored result without its run data.
type Summary struct {
	ID         string          `json:"id"`
	Kind       experiment.Kind `json:"kind"`
	CreatedAt  time.Time       `json:"created_at"`
	Points     int             `json:"points"`
	Runs       int             `json:"runs"`
	Attributes map[string]any  `json:"attributes"`
}

// Filter restricts List.
type Filter struct {
	Kind  experiment.Kind // empty matches every kind
	Limit int             // 0 means no limit
}

// ResultStore defines the interface for saving and loading experiment
// results. Results are listed newest first.
type ResultStore interface {
	Save(ctx context.Context, res *experiment.Result) error
	Get(ctx context.Context, id string) (*experiment.Result, error)
	List(ctx context.Context, filter Filter) ([]Summary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

func summarize(res *experiment.Result) Summary {
	s := Summary{
		ID:         res.ID,
		Kind:       res.Kind,
		CreatedAt:  res.CreatedAt,
		Points:     len(res.Points),
		Attributes: res.Attributes,
	}
	for _, p := range res.Points {
		s.Runs += len(p.Runs)
	}
	return s
}

func validate(res *experiment.Result) error {
	if res == nil {
		return errors.New("result is nil")
	}
	if res.ID == "" {
		return errors.New("result ID is required")
	}
	return nil
}
