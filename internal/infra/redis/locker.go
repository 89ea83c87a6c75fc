package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"staybook/internal/app/policies"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a lease lock shared by every engine instance on the same Redis. A holder that dies
// loses the lock after Lease.
type Locker struct {
	client  redis.UniversalClient
	Prefix  string
	Lease   time.Duration
	Poll    time.Duration
	MaxWait time.Duration
}

func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{
		client:  client,
		Prefix:  "staybook:lock:",
		Lease:   30 * time.Second,
		Poll:    20 * time.Millisecond,
		MaxWait: 5 * time.Second,
	}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if l.client == nil {
		return nil, errors.New("redis: client is nil")
	}
	if l.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.MaxWait)
		defer cancel()
	}
	name := l.Prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.Poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, name, token, l.Lease).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return l.releaser(name, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", policies.ErrLockTimeout, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) releaser(name, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{name}, token).Err()
		})
	}
}

var _ policies.Locker = (*Locker)(nil)
