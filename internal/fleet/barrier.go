package fleet

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Barrier runs task(ctx, i) for every i in [0, n) concurrently and returns
// once all of them have returned. Results keep task order. A task's failure
// is its own result; it never cancels the others.
func Barrier[T any](ctx context.Context, n int, task func(ctx context.Context, i int) T) []T {
	results := make([]T, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			results[i] = task(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
