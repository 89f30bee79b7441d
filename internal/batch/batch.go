// Package batch runs per-entry work concurrently and writes extracted
// entries to the filesystem.
package batch

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers resolves a worker setting: values < 0 force serial processing,
// zero uses GOMAXPROCS, and values > 0 are used as-is.
func Workers(n int) int {
	switch {
	case n < 0:
		return 1
	case n == 0:
		return runtime.GOMAXPROCS(0)
	default:
		return n
	}
}

// Run calls fn for every index in [0, n) using at most workers goroutines
// (see Workers). The first error cancels the context passed to the remaining
// calls and is returned.
func Run(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	limit := Workers(workers)
	if limit == 1 {
		for i := range n {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for i := range n {
		if gctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
