package middleware

import (
	"context"
	"errors"
	"time"

	"staybook/internal/app/commands"
	"staybook/internal/domain/shared/concurrency"
)

// RetryOnConflict re-runs a command that lost an optimistic-concurrency race. Each attempt starts
// from fresh state, so it must sit outside the transaction middleware.
func RetryOnConflict(retries int, backoff time.Duration) CommandMiddleware {
	if retries < 0 {
		retries = 0
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := next.Dispatch(ctx, cmd)
			for attempt := 0; attempt < retries && errors.Is(err, concurrency.ErrConcurrentUpdate); attempt++ {
				if backoff > 0 {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(backoff):
					}
				}
				res, err = next.Dispatch(ctx, cmd)
			}
			return res, err
		})
	}
}
