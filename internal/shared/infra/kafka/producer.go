// Package kafka wraps the franz-go client for the integration-event relay.
// It speaks the Kafka protocol, so either Kafka or Redpanda works as the
// broker.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// Producer publishes event envelopes to broker topics.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewProducer creates a new producer.
func NewProducer(brokers []string, logger *slog.Logger) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger.With("component", "kafka-producer"),
	}, nil
}

// Publish sends an event to the specified topic. Records are keyed by
// aggregate ID so consumers see each aggregate's events in order.
func (p *Producer) Publish(ctx context.Context, topic string, event *events.Envelope) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(event.AggregateID.String()),
		Value: value,
	}

	results := p.client.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.logger.Debug("event published",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
	)

	return nil
}

// Close closes the producer connection.
func (p *Producer) Close() {
	p.client.Close()
	p.logger.Info("Kafka producer closed")
}
