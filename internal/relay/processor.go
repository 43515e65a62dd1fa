// Package relay moves committed domain events from the transactional
// outbox onto broker topics for external consumers. The read-model path
// never depends on it: projections read the event store directly, so the
// relay can be disabled or down without affecting the application.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// Topics by aggregate kind. Unknown aggregate types fall back to
// TopicDefault rather than wedging the outbox.
const (
	TopicUserEvents     = "user-events"
	TopicRecipeEvents   = "recipe-events"
	TopicMealPlanEvents = "meal-plan-events"
	TopicDefault        = "mealstack-events"
)

// TopicFor maps an aggregate type to its broker topic.
func TopicFor(aggregateType string) string {
	switch aggregateType {
	case events.AggregateUser:
		return TopicUserEvents
	case events.AggregateRecipe:
		return TopicRecipeEvents
	case events.AggregateMealPlan:
		return TopicMealPlanEvents
	default:
		return TopicDefault
	}
}

// OutboxReader reads and manages staged entries.
type OutboxReader interface {
	FetchPending(ctx context.Context, limit int) ([]Entry, error)
	Delete(ctx context.Context, outboxID uuid.UUID) error
	IncrementRetry(ctx context.Context, outboxID uuid.UUID) error
}

// EventPublisher publishes events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *events.Envelope) error
}

// ProcessorConfig holds configuration for the relay processor.
type ProcessorConfig struct {
	BatchSize    int
	MaxRetries   int
	PollInterval time.Duration
}

// Processor drains the outbox to the broker. Entries are published
// sequentially in creation order so per-aggregate ordering on the topics
// matches the event store.
type Processor struct {
	outbox     OutboxReader
	publisher  EventPublisher
	listenConn *pgx.Conn
	config     ProcessorConfig
	logger     *slog.Logger
}

// NewProcessor creates a relay processor. listenConn may be nil; the poll
// timer alone then drives the loop.
func NewProcessor(
	outbox OutboxReader,
	publisher EventPublisher,
	listenConn *pgx.Conn,
	config ProcessorConfig,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		outbox:     outbox,
		publisher:  publisher,
		listenConn: listenConn,
		config:     config,
		logger:     logger.With("component", "relay"),
	}
}

// Start drains the outbox until the context is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info("starting relay",
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries,
		"poll_interval", p.config.PollInterval,
	)

	notifyCh := make(chan *pgconn.Notification, 1)
	if p.listenConn != nil {
		if _, err := p.listenConn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
			return err
		}
		go p.notificationListener(ctx, notifyCh)
	}

	timer := time.NewTimer(p.config.PollInterval)
	defer timer.Stop()

	p.drainOutbox(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("relay stopped")
			return nil

		case notification := <-notifyCh:
			if notification != nil {
				p.logger.Debug("received NOTIFY", "payload", notification.Payload)
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(p.config.PollInterval)
				p.drainOutbox(ctx)
			}

		case <-timer.C:
			p.drainOutbox(ctx)
			timer.Reset(p.config.PollInterval)
		}
	}
}

// notificationListener forwards NOTIFY wakeups to the drain loop.
func (p *Processor) notificationListener(ctx context.Context, notifyCh chan<- *pgconn.Notification) {
	for {
		notification, err := p.listenConn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Error("error waiting for notification", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case notifyCh <- notification:
		default:
		}
	}
}

// drainOutbox publishes staged batches until the outbox is empty or only
// poisoned entries remain.
func (p *Processor) drainOutbox(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		entries, err := p.outbox.FetchPending(ctx, p.config.BatchSize)
		if err != nil {
			p.logger.Error("failed to fetch pending entries", "error", err)
			return
		}
		if len(entries) == 0 {
			return
		}

		progressed := false
		for _, entry := range entries {
			if ctx.Err() != nil {
				return
			}
			if p.processEntry(ctx, entry) {
				progressed = true
			}
		}
		if !progressed {
			// Everything left is failing or poisoned; back off to the
			// timer instead of spinning.
			return
		}
	}
}

// processEntry publishes one entry. Reports whether the outbox shrank.
func (p *Processor) processEntry(ctx context.Context, entry Entry) bool {
	logger := p.logger.With(
		"outbox_id", entry.OutboxID,
		"event_id", entry.Envelope.EventID,
		"event_type", entry.Envelope.EventType,
	)

	if entry.RetryCount >= p.config.MaxRetries {
		logger.Error("max retries exceeded, leaving in outbox as evidence",
			"retry_count", entry.RetryCount,
		)
		return false
	}

	topic := TopicFor(entry.Envelope.AggregateType)
	if err := p.publisher.Publish(ctx, topic, entry.Envelope); err != nil {
		logger.Error("failed to publish event", "topic", topic, "error", err)
		if err := p.outbox.IncrementRetry(ctx, entry.OutboxID); err != nil {
			logger.Error("failed to increment retry count", "error", err)
		}
		return false
	}

	if err := p.outbox.Delete(ctx, entry.OutboxID); err != nil {
		// The entry will be republished; consumers dedupe on event_id.
		logger.Error("failed to delete published entry", "error", err)
		return false
	}

	logger.Debug("event relayed", "topic", topic)
	return true
}
