package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/vedant2606-dev/bg-removal-service/internal/repository"
)

// Consumer drains the audit topic and persists every event to the
// audit_events table. Balance mutations never happen here: the ledger applies
// them synchronously, the stream is the trail.
type Consumer struct {
	reader    *kafka.Reader
	auditRepo repository.AuditRepository
}

func NewConsumer(brokers []string, topic, groupID string, auditRepo repository.AuditRepository) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		auditRepo: auditRepo,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		var envelope struct {
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			slog.Error("failed to unmarshal audit event", "error", err)
			continue
		}
		if envelope.EventType == "" {
			slog.Error("audit event missing event_type", "key", string(msg.Key))
			continue
		}

		if err := c.auditRepo.Append(ctx, envelope.EventType, msg.Value); err != nil {
			slog.Error("failed to persist audit event", "event_type", envelope.EventType, "error", err)
			continue
		}

		slog.Info("audit event persisted", "event_type", envelope.EventType, "key", string(msg.Key))
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
