package middleware

import (
	"context"

	"staybook/internal/app/commands"
	"staybook/internal/app/outbox"
)

// OutboxFlush nudges the relay once a command has committed. A failed nudge is not a command
// failure: the relay polls anyway. A nil flusher yields no middleware.
func OutboxFlush(box outbox.Flusher) CommandMiddleware {
	if box == nil {
		return nil
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := next.Dispatch(ctx, cmd)
			if err != nil {
				return nil, err
			}
			_ = box.Flush(ctx)
			return res, nil
		})
	}
}
