// Command notifier consumes relayed booking events and logs the guest and host notifications they
// trigger.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"staybook/internal/app/notifications"
	"staybook/internal/infra/broker/kafka"
	"staybook/internal/infra/config"
	"staybook/internal/infra/db/mongo"
	"staybook/internal/infra/inbox"
	"staybook/internal/infra/obs"
	redisstore "staybook/internal/infra/redis"
)

const inboxTTL = 7 * 24 * time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("cannot read .env", "error", err)
	}
	cfg, err := config.Load()
	logger := obs.NewLogger(cfg.Env).With("component", "notifier")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS is required")
		os.Exit(1)
	}

	seen, cleanup, err := openInbox(ctx, cfg)
	if err != nil {
		logger.Error("inbox unavailable", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	svc := &notifications.Service{Inbox: seen, Sender: notifications.LogSender{Logger: logger}, Logger: logger}
	topics := []string{
		cfg.KafkaTopicPrefix + "reservation.events.v1",
		cfg.KafkaTopicPrefix + "payment.events.v1",
	}
	handle := func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		err := svc.Handle(ctx, msg.Value)
		if errors.Is(err, notifications.ErrMalformedEvent) {
			logger.WarnContext(ctx, "dropping malformed event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
			return nil
		}
		return err
	}
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, topics, kafka.NewConfig(cfg.KafkaGroupID), handle, logger)
	if err != nil {
		logger.Error("kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	logger.Info("notifier starting", "topics", topics, "group", cfg.KafkaGroupID)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("notifier stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("notifier stopped")
}

// openInbox prefers Redis, then Mongo, and falls back to a process-local inbox.
func openInbox(ctx context.Context, cfg config.Config) (notifications.Inbox, func(), error) {
	switch {
	case cfg.RedisAddr != "":
		rdb := redisstore.NewClient(cfg)
		if err := redisstore.Ping(ctx, rdb); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return redisstore.NewInbox(rdb, cfg.KafkaGroupID, inboxTTL), func() { _ = rdb.Close() }, nil
	case cfg.StorageDriver == config.DriverMongo:
		client, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		store, err := inbox.NewMongoStore(ctx, client.DB, cfg.KafkaGroupID)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return store, func() { _ = client.Disconnect(context.Background()) }, nil
	default:
		return inbox.NewMemoryStore(inboxTTL), func() {}, nil
	}
}
