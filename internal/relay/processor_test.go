package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealstack/mealstack/internal/domain/user"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

type fakeOutbox struct {
	mu      sync.Mutex
	entries []Entry
}

func (f *fakeOutbox) stage(env *events.Envelope, retryCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, Entry{
		OutboxID:   env.EventID,
		Envelope:   env,
		RetryCount: retryCount,
	})
}

func (f *fakeOutbox) FetchPending(_ context.Context, limit int) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) > limit {
		return append([]Entry(nil), f.entries[:limit]...), nil
	}
	return append([]Entry(nil), f.entries...), nil
}

func (f *fakeOutbox) Delete(_ context.Context, outboxID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.OutboxID == outboxID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeOutbox) IncrementRetry(_ context.Context, outboxID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].OutboxID == outboxID {
			f.entries[i].RetryCount++
		}
	}
	return nil
}

func (f *fakeOutbox) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type published struct {
	topic string
	event *events.Envelope
}

type fakePublisher struct {
	mu       sync.Mutex
	records  []published
	failures int
}

func (f *fakePublisher) Publish(_ context.Context, topic string, event *events.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.records = append(f.records, published{topic: topic, event: event})
	return nil
}

func (f *fakePublisher) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.records...)
}

func newProcessor(outbox *fakeOutbox, publisher *fakePublisher) *Processor {
	return NewProcessor(outbox, publisher, nil, ProcessorConfig{
		BatchSize:    2,
		MaxRetries:   3,
		PollInterval: 5 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testEnvelope(t *testing.T, aggregateType string) *events.Envelope {
	t.Helper()
	env, err := events.Wrap(aggregateType, uuid.Must(uuid.NewV4()),
		user.Registered{Email: "ada@example.com", Tier: user.TierFree},
		events.Metadata{Source: "test"})
	require.NoError(t, err)
	return env
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, TopicUserEvents, TopicFor(events.AggregateUser))
	assert.Equal(t, TopicRecipeEvents, TopicFor(events.AggregateRecipe))
	assert.Equal(t, TopicMealPlanEvents, TopicFor(events.AggregateMealPlan))
	assert.Equal(t, TopicDefault, TopicFor("something_else"))
}

func TestDrainOutboxPublishesAndDeletes(t *testing.T) {
	outbox := &fakeOutbox{}
	publisher := &fakePublisher{}

	// Five entries across three aggregate kinds, more than one batch.
	staged := []*events.Envelope{
		testEnvelope(t, events.AggregateUser),
		testEnvelope(t, events.AggregateRecipe),
		testEnvelope(t, events.AggregateMealPlan),
		testEnvelope(t, events.AggregateRecipe),
		testEnvelope(t, events.AggregateUser),
	}
	for _, env := range staged {
		outbox.stage(env, 0)
	}

	newProcessor(outbox, publisher).drainOutbox(context.Background())

	sent := publisher.sent()
	require.Len(t, sent, 5)
	assert.Zero(t, outbox.size(), "published entries must be deleted")

	// Creation order and topic routing both hold.
	for i, rec := range sent {
		assert.Equal(t, staged[i].EventID, rec.event.EventID)
		assert.Equal(t, TopicFor(staged[i].AggregateType), rec.topic)
	}
}

func TestDrainOutboxRetriesOnPublishFailure(t *testing.T) {
	outbox := &fakeOutbox{}
	publisher := &fakePublisher{failures: 1}

	env := testEnvelope(t, events.AggregateUser)
	outbox.stage(env, 0)

	proc := newProcessor(outbox, publisher)
	proc.drainOutbox(context.Background())

	// First pass failed: entry still staged with a bumped retry count.
	require.Equal(t, 1, outbox.size())
	assert.Equal(t, 1, outbox.entries[0].RetryCount)
	assert.Empty(t, publisher.sent())

	// Next pass succeeds.
	proc.drainOutbox(context.Background())
	assert.Zero(t, outbox.size())
	assert.Len(t, publisher.sent(), 1)
}

func TestDrainOutboxSkipsPoisonedEntries(t *testing.T) {
	outbox := &fakeOutbox{}
	publisher := &fakePublisher{}

	poisoned := testEnvelope(t, events.AggregateUser)
	outbox.stage(poisoned, 3) // at MaxRetries
	healthy := testEnvelope(t, events.AggregateRecipe)
	outbox.stage(healthy, 0)

	newProcessor(outbox, publisher).drainOutbox(context.Background())

	// The healthy entry got through; the poisoned one stays as evidence.
	sent := publisher.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, healthy.EventID, sent[0].event.EventID)
	require.Equal(t, 1, outbox.size())
	assert.Equal(t, poisoned.EventID, outbox.entries[0].OutboxID)
}

func TestStartStopsOnCancel(t *testing.T) {
	outbox := &fakeOutbox{}
	publisher := &fakePublisher{}
	outbox.stage(testEnvelope(t, events.AggregateUser), 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newProcessor(outbox, publisher).Start(ctx) }()

	require.Eventually(t, func() bool {
		return outbox.size() == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
