package util

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Parallel runs fn for every input with at most limit calls in flight (all
// at once when limit <= 0). The first error cancels the context handed to the
// running calls and stops new ones from starting; Parallel returns it after
// every started call has returned.
func Parallel[T any](ctx context.Context, inputs []T, limit int, fn func(context.Context, T) error) error {
	if len(inputs) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = len(inputs)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, item := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, item)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
