package projections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"github.com/mealstack/mealstack/internal/eventstore"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// TxBeginner opens delivery transactions. Both *pgxpool.Pool and pgx.Conn
// satisfy it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RunnerConfig holds configuration for the projection runner.
type RunnerConfig struct {
	// PollInterval bounds how stale read models can get when a NOTIFY
	// is lost.
	PollInterval time.Duration

	// BatchSize caps how many events are fetched per handler per pass.
	BatchSize int
}

// Runner delivers committed events to registered handlers.
//
// Run is the continuous production mode: it wakes on the event store's
// NOTIFY channel, backed by a watchdog poll timer, and applies pending
// events until the context is cancelled. Drain is the one-shot mode used
// by tests and rebuild tooling: it delivers everything pending and
// returns.
type Runner struct {
	db       TxBeginner
	reader   eventstore.Reader
	cursors  CursorStore
	handlers []Handler

	listenConn *pgx.Conn
	config     RunnerConfig
	logger     *slog.Logger

	// backoff state per handler, touched only by the delivery loop.
	stalled map[string]*stall

	active atomic.Bool
}

// stall tracks a failing handler between passes. The handler is skipped
// until `until`, with the delay growing on each consecutive failure so one
// broken projection cannot hog the loop.
type stall struct {
	backoff retry.Backoff
	until   time.Time
}

// NewRunner creates a projection runner. listenConn may be nil, in which
// case the runner relies on the poll timer alone.
func NewRunner(
	db TxBeginner,
	reader eventstore.Reader,
	cursors CursorStore,
	handlers []Handler,
	listenConn *pgx.Conn,
	config RunnerConfig,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		db:         db,
		reader:     reader,
		cursors:    cursors,
		handlers:   handlers,
		listenConn: listenConn,
		config:     config,
		logger:     logger.With("component", "projection-runner"),
		stalled:    make(map[string]*stall),
	}
}

// Run delivers events continuously until ctx is cancelled. Handler errors
// are logged and retried with backoff; they never stop the runner or the
// other handlers.
func (r *Runner) Run(ctx context.Context) error {
	if !r.active.CompareAndSwap(false, true) {
		return errors.New("projection runner is already active")
	}
	defer r.active.Store(false)

	r.logger.Info("starting projection runner",
		"handlers", len(r.handlers),
		"batch_size", r.config.BatchSize,
		"poll_interval", r.config.PollInterval,
	)

	notifyCh := make(chan *pgconn.Notification, 1)
	if r.listenConn != nil {
		if _, err := r.listenConn.Exec(ctx, "LISTEN "+eventstore.NotifyChannel); err != nil {
			return fmt.Errorf("failed to LISTEN on %s: %w", eventstore.NotifyChannel, err)
		}
		go r.notificationListener(ctx, notifyCh)
	}

	timer := time.NewTimer(r.config.PollInterval)
	defer timer.Stop()

	// Initial pass picks up whatever accumulated while the runner was down.
	r.deliverAll(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("projection runner stopped")
			return nil

		case notification := <-notifyCh:
			if notification != nil {
				r.logger.Debug("received NOTIFY", "payload", notification.Payload)
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(r.config.PollInterval)
				r.deliverAll(ctx)
			}

		case <-timer.C:
			r.deliverAll(ctx)
			timer.Reset(r.config.PollInterval)
		}
	}
}

// Drain delivers every pending event once and returns. Unlike Run, a
// handler error aborts the drain and is returned to the caller, so tests
// see projection bugs instead of silently stale tables.
func (r *Runner) Drain(ctx context.Context) error {
	if !r.active.CompareAndSwap(false, true) {
		return errors.New("projection runner is already active")
	}
	defer r.active.Store(false)

	for _, h := range r.handlers {
		for _, aggregateType := range h.AggregateTypes() {
			for {
				n, err := r.deliverBatch(ctx, h, aggregateType)
				if err != nil {
					return fmt.Errorf("projection %s: %w", h.Name(), err)
				}
				if n == 0 {
					break
				}
			}
		}
	}
	return nil
}

// notificationListener forwards NOTIFY wakeups from the dedicated
// connection to the delivery loop.
func (r *Runner) notificationListener(ctx context.Context, notifyCh chan<- *pgconn.Notification) {
	for {
		notification, err := r.listenConn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Error("error waiting for notification", "error", err)
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
			// A wakeup is already queued; one pass drains everything.
		}
	}
}

// deliverAll runs one delivery pass over every handler, isolating
// failures.
func (r *Runner) deliverAll(ctx context.Context) {
	now := time.Now()
	for _, h := range r.handlers {
		if ctx.Err() != nil {
			return
		}
		if s, ok := r.stalled[h.Name()]; ok && now.Before(s.until) {
			continue
		}

		if err := r.deliverPending(ctx, h); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.recordFailure(h.Name(), err)
			continue
		}
		delete(r.stalled, h.Name())
	}
}

// deliverPending drains everything currently pending for one handler.
func (r *Runner) deliverPending(ctx context.Context, h Handler) error {
	for _, aggregateType := range h.AggregateTypes() {
		for {
			n, err := r.deliverBatch(ctx, h, aggregateType)
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
		}
	}
	return nil
}

// deliverBatch fetches one batch past the handler's cursor and applies it
// event by event, each in its own transaction with the cursor advance.
// Returns how many events were delivered.
func (r *Runner) deliverBatch(ctx context.Context, h Handler, aggregateType string) (int, error) {
	after, err := r.cursors.Get(ctx, h.Name(), aggregateType)
	if err != nil {
		return 0, err
	}

	envelopes, err := r.reader.ReadSince(ctx, aggregateType, after, h.EventTypes(), r.config.BatchSize)
	if err != nil {
		return 0, err
	}

	for i, env := range envelopes {
		if ctx.Err() != nil {
			// Undelivered events stay behind the cursor and are picked
			// up on the next start.
			return i, ctx.Err()
		}
		if err := r.deliverOne(ctx, h, aggregateType, env); err != nil {
			return i, fmt.Errorf("event %s (global_seq %d): %w", env.EventType, env.GlobalSeq, err)
		}
	}
	return len(envelopes), nil
}

// deliverOne applies a single event and advances the cursor atomically.
func (r *Runner) deliverOne(ctx context.Context, h Handler, aggregateType string, env *events.Envelope) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin delivery transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := h.Apply(ctx, tx, env); err != nil {
		return err
	}
	if err := r.cursors.AdvanceInTx(ctx, tx, h.Name(), aggregateType, env.GlobalSeq); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delivery transaction: %w", err)
	}
	return nil
}

// recordFailure logs a handler error and schedules its next attempt with
// exponential backoff, capped at ten times the poll interval.
func (r *Runner) recordFailure(name string, err error) {
	s, ok := r.stalled[name]
	if !ok {
		s = &stall{backoff: retry.WithCappedDuration(
			10*r.config.PollInterval,
			retry.NewExponential(r.config.PollInterval),
		)}
		r.stalled[name] = s
	}

	delay, stopped := s.backoff.Next()
	if stopped {
		delay = 10 * r.config.PollInterval
	}
	s.until = time.Now().Add(delay)

	r.logger.Error("projection handler failed, backing off",
		"projection", name,
		"retry_in", delay,
		"error", err,
	)
}
