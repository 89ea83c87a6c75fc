package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"staybook/internal/app/notifications"
)

// Inbox deduplicates consumed events per consumer group with SETNX.
type Inbox struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewInbox(client redis.UniversalClient, consumer string, ttl time.Duration) *Inbox {
	return &Inbox{client: client, prefix: "staybook:inbox:" + consumer + ":", ttl: ttl}
}

func (i *Inbox) Seen(ctx context.Context, eventID string) (bool, error) {
	fresh, err := i.client.SetNX(ctx, i.prefix+eventID, time.Now().UTC().Format(time.RFC3339), i.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("inbox: %w", err)
	}
	return !fresh, nil
}

var _ notifications.Inbox = (*Inbox)(nil)
