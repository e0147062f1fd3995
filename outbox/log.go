package outbox

import (
	"context"
	"log/slog"
)

// LogPublisher writes messages to the log. It stands in for Kafka when no
// brokers are configured so the outbox still drains.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("module", "outbox")}
}

func (p *LogPublisher) Publish(ctx context.Context, msg Message) error {
	p.logger.InfoContext(ctx, "outbox event",
		"id", msg.ID,
		"topic", msg.Topic,
		"partition_key", msg.PartitionKey,
		"payload", string(msg.Payload),
	)
	return nil
}
