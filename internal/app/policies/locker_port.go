package policies

import (
	"context"
	"errors"
	"time"
)

var ErrLockTimeout = errors.New("policies: lock not acquired in time")

// Locker serializes work on one key across goroutines or instances.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same instant; tests move it by assigning T.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
