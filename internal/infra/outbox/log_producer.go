package outbox

import (
	"context"
	"log/slog"
)

// LogProducer stands in for the broker when none is configured; messages are logged and marked sent.
type LogProducer struct {
	Logger *slog.Logger
}

func (p LogProducer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "event relayed", "topic", topic, "key", key, "bytes", len(payload), "event_name", headers["event-name"])
	return nil
}
