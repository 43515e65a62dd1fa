package projections

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealstack/mealstack/internal/domain/user"
	"github.com/mealstack/mealstack/internal/eventstore"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

type fakeTx struct{}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(ctx context.Context) error          { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error        { return nil }
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                               { return nil }

type fakeBeginner struct{}

func (fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }

// memoryCursors is an in-memory CursorStore for runner tests.
type memoryCursors struct {
	mu      sync.Mutex
	cursors map[string]int64
}

func newMemoryCursors() *memoryCursors {
	return &memoryCursors{cursors: make(map[string]int64)}
}

func (c *memoryCursors) Get(_ context.Context, projectionName, aggregateType string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursors[projectionName+"/"+aggregateType], nil
}

func (c *memoryCursors) AdvanceInTx(_ context.Context, _ pgx.Tx, projectionName, aggregateType string, globalSeq int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := projectionName + "/" + aggregateType
	if globalSeq > c.cursors[key] {
		c.cursors[key] = globalSeq
	}
	return nil
}

// recordingHandler captures delivered envelopes, optionally failing the
// first N applies.
type recordingHandler struct {
	name       string
	aggregates []string
	types      []string

	mu        sync.Mutex
	delivered []*events.Envelope
	failures  int
}

func (h *recordingHandler) Name() string             { return h.name }
func (h *recordingHandler) AggregateTypes() []string { return h.aggregates }
func (h *recordingHandler) EventTypes() []string     { return h.types }

func (h *recordingHandler) Apply(_ context.Context, _ pgx.Tx, env *events.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures > 0 {
		h.failures--
		return errors.New("simulated projection failure")
	}
	h.delivered = append(h.delivered, env)
	return nil
}

func (h *recordingHandler) seen() []*events.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*events.Envelope(nil), h.delivered...)
}

type runnerFixture struct {
	store   *eventstore.MemoryStore
	cursors *memoryCursors
}

func newRunnerFixture() *runnerFixture {
	return &runnerFixture{
		store:   eventstore.NewMemoryStore(),
		cursors: newMemoryCursors(),
	}
}

func (f *runnerFixture) runner(handlers ...Handler) *Runner {
	return NewRunner(
		fakeBeginner{},
		f.store,
		f.cursors,
		handlers,
		nil,
		RunnerConfig{PollInterval: 10 * time.Millisecond, BatchSize: 3},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

// appendUserEvent commits one user event and returns its envelope.
func (f *runnerFixture) appendUserEvent(t *testing.T, userID uuid.UUID, version int64, payload events.Payload) *events.Envelope {
	t.Helper()
	envs, err := events.WrapAll(events.AggregateUser, userID, []events.Payload{payload}, events.Metadata{Source: "test"})
	require.NoError(t, err)
	require.NoError(t, f.store.AppendInTx(context.Background(), nil, version, envs))
	return envs[0]
}

func TestDrainDeliversInCommitOrder(t *testing.T) {
	f := newRunnerFixture()
	handler := &recordingHandler{
		name:       "test_projection",
		aggregates: []string{events.AggregateUser},
		types:      user.EventTypes(),
	}

	// Ten events across two streams, more than one batch.
	ada, eve := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	f.appendUserEvent(t, ada, 0, user.Registered{UserID: ada, Email: "ada@example.com", Tier: user.TierFree})
	f.appendUserEvent(t, eve, 0, user.Registered{UserID: eve, Email: "eve@example.com", Tier: user.TierFree})
	for i := int64(0); i < 4; i++ {
		f.appendUserEvent(t, ada, i+1, user.TierChanged{Tier: user.TierPremium})
		f.appendUserEvent(t, eve, i+1, user.TierChanged{Tier: user.TierPremium})
	}

	require.NoError(t, f.runner(handler).Drain(context.Background()))

	seen := handler.seen()
	require.Len(t, seen, 10)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i].GlobalSeq, seen[i-1].GlobalSeq, "delivery must follow commit order")
	}

	cursor, err := f.cursors.Get(context.Background(), "test_projection", events.AggregateUser)
	require.NoError(t, err)
	assert.Equal(t, seen[len(seen)-1].GlobalSeq, cursor)
}

func TestDrainSkipsUninterestingEventTypes(t *testing.T) {
	f := newRunnerFixture()
	handler := &recordingHandler{
		name:       "registrations_only",
		aggregates: []string{events.AggregateUser},
		types:      []string{user.EventRegistered},
	}

	ada := uuid.Must(uuid.NewV4())
	f.appendUserEvent(t, ada, 0, user.Registered{UserID: ada, Email: "ada@example.com", Tier: user.TierFree})
	f.appendUserEvent(t, ada, 1, user.TierChanged{Tier: user.TierPremium})

	require.NoError(t, f.runner(handler).Drain(context.Background()))

	seen := handler.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, user.EventRegistered, seen[0].EventType)
}

func TestDrainResumesFromCursor(t *testing.T) {
	f := newRunnerFixture()
	handler := &recordingHandler{
		name:       "test_projection",
		aggregates: []string{events.AggregateUser},
		types:      user.EventTypes(),
	}

	ada := uuid.Must(uuid.NewV4())
	f.appendUserEvent(t, ada, 0, user.Registered{UserID: ada, Email: "ada@example.com", Tier: user.TierFree})
	require.NoError(t, f.runner(handler).Drain(context.Background()))
	require.Len(t, handler.seen(), 1)

	// A second drain with nothing new delivers nothing: no redelivery.
	require.NoError(t, f.runner(handler).Drain(context.Background()))
	assert.Len(t, handler.seen(), 1)

	// New events resume past the cursor.
	f.appendUserEvent(t, ada, 1, user.TierChanged{Tier: user.TierPremium})
	require.NoError(t, f.runner(handler).Drain(context.Background()))
	seen := handler.seen()
	require.Len(t, seen, 2)
	assert.Equal(t, user.EventTierChanged, seen[1].EventType)
}

func TestDrainPropagatesHandlerErrors(t *testing.T) {
	f := newRunnerFixture()
	handler := &recordingHandler{
		name:       "broken",
		aggregates: []string{events.AggregateUser},
		types:      user.EventTypes(),
		failures:   1,
	}

	ada := uuid.Must(uuid.NewV4())
	f.appendUserEvent(t, ada, 0, user.Registered{UserID: ada, Email: "ada@example.com", Tier: user.TierFree})

	err := f.runner(handler).Drain(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	// The failed event was not consumed: the next drain delivers it.
	require.NoError(t, f.runner(handler).Drain(context.Background()))
	assert.Len(t, handler.seen(), 1)
}

func TestRunIsolatesFailingHandler(t *testing.T) {
	f := newRunnerFixture()
	broken := &recordingHandler{
		name:       "broken",
		aggregates: []string{events.AggregateUser},
		types:      user.EventTypes(),
		failures:   1000,
	}
	healthy := &recordingHandler{
		name:       "healthy",
		aggregates: []string{events.AggregateUser},
		types:      user.EventTypes(),
	}

	ada := uuid.Must(uuid.NewV4())
	f.appendUserEvent(t, ada, 0, user.Registered{UserID: ada, Email: "ada@example.com", Tier: user.TierFree})

	ctx, cancel := context.WithCancel(context.Background())
	runner := f.runner(broken, healthy)
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(healthy.seen()) == 1
	}, time.Second, 5*time.Millisecond, "healthy handler must progress despite the broken one")

	cancel()
	require.NoError(t, <-done)

	// The broken handler consumed nothing.
	cursor, err := f.cursors.Get(context.Background(), "broken", events.AggregateUser)
	require.NoError(t, err)
	assert.Zero(t, cursor)
}

func TestRunRejectsConcurrentActivation(t *testing.T) {
	f := newRunnerFixture()
	runner := f.runner()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		return runner.Drain(context.Background()) != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	// Once Run returns the runner is reusable.
	require.NoError(t, runner.Drain(context.Background()))
}
