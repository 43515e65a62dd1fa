// Package projections derives every read-model table from the event log.
//
// Each handler is a named, durable subscription over one or more aggregate
// kinds. The runner delivers undelivered events to each handler in commit
// order, one database transaction per event, advancing the handler's
// cursor in that same transaction. Delivery is at-least-once under crash
// and retry, so every handler's Apply must be idempotent: re-applying a
// delivered event leaves its tables unchanged.
//
// Read-model tables are pure caches. It is always safe to truncate them
// and rebuild by re-running the runner from cursor zero; handlers therefore
// derive stored values only from event content (including event-embedded
// timestamps), never from wall-clock time or command-side state.
package projections

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// Handler is a projection: a durable consumer of specific event types that
// applies idempotent mutations to the read-model tables it owns.
type Handler interface {
	// Name is the stable identity used for cursor tracking. Renaming a
	// handler orphans its cursor and redelivers history.
	Name() string

	// AggregateTypes lists the aggregate kinds this handler consumes.
	AggregateTypes() []string

	// EventTypes lists the event types this handler is interested in.
	// Events of other types never reach Apply.
	EventTypes() []string

	// Apply processes one event inside the delivery transaction. The
	// cursor advance commits in the same transaction; returning an error
	// rolls both back.
	Apply(ctx context.Context, tx pgx.Tx, env *events.Envelope) error
}

// CursorStore persists how far each (handler, aggregate type) pair has
// consumed the event log. Cursors are durable rows, not in-memory state,
// so restart and multi-instance deployment neither redeliver nor skip.
type CursorStore interface {
	// Get returns the last delivered global sequence, or 0 if the handler
	// has never consumed this aggregate type.
	Get(ctx context.Context, projectionName, aggregateType string) (int64, error)

	// AdvanceInTx moves the cursor forward inside the delivery
	// transaction. It never moves a cursor backwards.
	AdvanceInTx(ctx context.Context, tx pgx.Tx, projectionName, aggregateType string, globalSeq int64) error
}
