package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// Handler processes one record. Returning an error leaves the offset unmarked so the record is
// redelivered after a rebalance or restart.
type Handler func(ctx context.Context, msg *sarama.ConsumerMessage) error

// Consumer runs a consumer group over Topics until its context ends.
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handle  Handler
	logger  *slog.Logger
	backoff time.Duration
}

func NewConsumer(brokers []string, groupID string, topics []string, cfg *sarama.Config, handle Handler, logger *slog.Logger) (*Consumer, error) {
	if cfg == nil {
		cfg = NewConfig(groupID)
	}
	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return newConsumer(group, topics, handle, logger), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handle Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{group: group, topics: topics, handle: handle, logger: logger, backoff: time.Second}
}

func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("consumer group error", "error", err)
		}
	}()
	for {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.WarnContext(ctx, "consume session ended", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.backoff):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

func (c *Consumer) Setup(s sarama.ConsumerGroupSession) error {
	c.logger.Info("consumer session started", "member_id", s.MemberID(), "generation", s.GenerationID())
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim stops at the first failed record of a partition; later records would otherwise be
// committed past it.
func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handle(ctx, msg); err != nil {
				c.logger.ErrorContext(ctx, "handle record failed",
					"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
				return err
			}
			sess.MarkMessage(msg, "")
		}
	}
}

var _ sarama.ConsumerGroupHandler = (*Consumer)(nil)
