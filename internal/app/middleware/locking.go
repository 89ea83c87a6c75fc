package middleware

import (
	"context"
	"sort"

	"staybook/internal/app/commands"
	"staybook/internal/app/policies"
)

// LockedCommand names the keys a command must hold for its whole transaction.
type LockedCommand interface {
	commands.Command
	LockKeys() []string
}

// Locking acquires every key of a LockedCommand in sorted order before the transaction starts and
// releases them after it committed or rolled back.
func Locking(locker policies.Locker) CommandMiddleware {
	if locker == nil {
		panic("middleware: locker required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			locked, ok := cmd.(LockedCommand)
			if !ok {
				return next.Dispatch(ctx, cmd)
			}
			keys := uniqueSorted(locked.LockKeys())
			unlocks := make([]func(), 0, len(keys))
			defer func() {
				for i := len(unlocks) - 1; i >= 0; i-- {
					unlocks[i]()
				}
			}()
			for _, key := range keys {
				unlock, err := locker.Lock(ctx, key)
				if err != nil {
					return nil, err
				}
				unlocks = append(unlocks, unlock)
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

func uniqueSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
