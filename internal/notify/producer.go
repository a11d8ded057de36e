package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, alert Alert) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, alert Alert) error {
	attempt := alert.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"alert_kind":      string(alert.Kind),
		"conversation_id": alert.ConversationID,
		"text":            alert.Text,
		"attempt":         attempt,
	}

	if alert.TraceID != nil && *alert.TraceID != "" {
		fields["trace_id"] = *alert.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue alert: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued alert", "alert_kind", alert.Kind, "conversation_id", alert.ConversationID, "attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
