package experiment

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// forEach runs job(ctx, k) for k in [0, total) on at most workers
// goroutines. done is called after every successful job, serialized. The
// first error cancels the remaining jobs and is returned.
func forEach(ctx context.Context, workers, total int, job func(ctx context.Context, k int) error, done func(k int)) error {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var mu sync.Mutex
	for k := 0; k < total; k++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := job(gctx, k); err != nil {
				return err
			}
			if done != nil {
				mu.Lock()
				done(k)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
