package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Pool runs per-record work with bounded parallelism. A failing item never
// stops the others; failures are logged and counted.
type Pool struct {
	name    string
	workers int
	logger  *slog.Logger
}

// Result summarizes one ForEach run.
type Result struct {
	Processed int
	Failed    int
	Skipped   int // not started because the context was cancelled
}

// NewPool creates a pool running at most workers items at once.
func NewPool(name string, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{name: name, workers: workers, logger: logger}
}

// ForEach calls fn for every item. Cancellation stops new items from
// starting; items already running finish.
func ForEach[T any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) error) Result {
	var g errgroup.Group
	g.SetLimit(p.workers)

	results := make(chan error, len(items))
	skipped := 0

	for _, item := range items {
		if ctx.Err() != nil {
			skipped++
			continue
		}
		g.Go(func() error {
			err := fn(ctx, item)
			if err != nil {
				p.logger.Warn("item failed", "pool", p.name, "error", err)
			}
			results <- err
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	res := Result{Skipped: skipped}
	for err := range results {
		res.Processed++
		if err != nil {
			res.Failed++
		}
	}
	return res
}
