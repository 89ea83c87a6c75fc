package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"staybook/internal/infra/config"
)

// NewClient builds a client from configuration. It does not dial.
func NewClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
