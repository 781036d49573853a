package guest

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Gather runs every fn concurrently and returns their results in
// argument order once all have completed. The first failure cancels the
// remaining fns and is returned alone.
func Gather[T any](ctx context.Context, fns ...func(context.Context) (T, error)) ([]T, error) {
	g, ctx := errgroup.WithContext(ctx)
	out := make([]T, len(fns))
	for i, fn := range fns {
		g.Go(func() error {
			v, err := fn(ctx)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
