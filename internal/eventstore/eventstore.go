// Package eventstore provides the append-only, per-aggregate ordered event
// log that every state change in the system flows through.
//
// Each aggregate instance owns a stream of events with contiguous sequence
// numbers starting at 1. Appends carry the caller's expected version; a
// mismatch means another writer committed first and the append fails with
// ErrConcurrencyConflict. A global commit-order sequence spans all streams
// and is what projection cursors track.
package eventstore

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

var (
	// ErrConcurrencyConflict indicates the expected version did not match
	// the stream head at append time. The caller lost an optimistic-
	// concurrency race and must reload before retrying.
	ErrConcurrencyConflict = errors.New("concurrency conflict: aggregate was modified concurrently")

	// ErrNoEvents indicates an attempt to append zero events.
	ErrNoEvents = errors.New("no events to append")
)

// Store is the write-side contract used by command handlers. Both methods
// operate inside the caller's transaction so that event appends commit
// atomically with side-table writes.
type Store interface {
	// AppendInTx appends the envelopes to their aggregate's stream,
	// assigning contiguous sequence numbers starting at expectedVersion+1.
	// All envelopes must share one aggregate type and ID. Returns
	// ErrConcurrencyConflict if the stream head is not expectedVersion.
	AppendInTx(ctx context.Context, tx pgx.Tx, expectedVersion int64, envelopes []*events.Envelope) error

	// LoadInTx returns the aggregate's events in ascending sequence order,
	// with no gaps. An empty slice means the aggregate does not exist yet.
	LoadInTx(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID uuid.UUID) ([]*events.Envelope, error)
}

// Reader is the read-forward contract used by the projection runner.
type Reader interface {
	// ReadSince returns events of the given aggregate type and event types
	// with GlobalSeq greater than afterGlobalSeq, in ascending GlobalSeq
	// order, up to limit. An empty eventTypes slice matches all types.
	ReadSince(ctx context.Context, aggregateType string, afterGlobalSeq int64, eventTypes []string, limit int) ([]*events.Envelope, error)
}

// validateBatch checks the envelopes form a single-aggregate append.
func validateBatch(envelopes []*events.Envelope) error {
	if len(envelopes) == 0 {
		return ErrNoEvents
	}
	first := envelopes[0]
	for _, env := range envelopes[1:] {
		if env.AggregateType != first.AggregateType || env.AggregateID != first.AggregateID {
			return errors.New("append batch spans multiple aggregates")
		}
	}
	return nil
}
