package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mealstack/mealstack/internal/shared/domain/clock"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// NotifyChannel is the Postgres NOTIFY channel signalled on every append so
// the projection runner wakes without waiting for its poll timer.
const NotifyChannel = "mealstack_events"

// streamSeqConstraint is the unique constraint on (aggregate_type,
// aggregate_id, sequence_number). A violation here means two writers raced
// on the same expected version.
const streamSeqConstraint = "events_stream_seq_uniq"

// PostgresStore implements Store and Reader on PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: logger.With("store", "events"),
	}
}

// AppendInTx appends the envelopes to their aggregate's stream inside the
// caller's transaction. Sequence numbers expectedVersion+1..+n are assigned
// here. The stream head is checked inside the transaction so a stale or
// overshooting expectedVersion fails cleanly; the unique stream constraint
// remains the backstop for two writers racing past the same head.
func (s *PostgresStore) AppendInTx(ctx context.Context, tx pgx.Tx, expectedVersion int64, envelopes []*events.Envelope) error {
	if err := validateBatch(envelopes); err != nil {
		return err
	}

	first := envelopes[0]

	var head int64
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM events
		 WHERE aggregate_type = $1 AND aggregate_id = $2`,
		first.AggregateType, first.AggregateID,
	).Scan(&head)
	if err != nil {
		return fmt.Errorf("failed to read stream head: %w", err)
	}
	if head != expectedVersion {
		return fmt.Errorf("append %s/%s: expected version %d, head is %d: %w",
			first.AggregateType, first.AggregateID, expectedVersion, head, ErrConcurrencyConflict)
	}

	const query = `
		INSERT INTO events (event_id, aggregate_type, aggregate_id, sequence_number,
		                    event_type, payload, metadata, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING global_seq
	`

	now := clock.Now()
	for i, env := range envelopes {
		env.SequenceNumber = expectedVersion + int64(i) + 1
		env.RecordedAt = now

		err := tx.QueryRow(ctx, query,
			env.EventID,
			env.AggregateType,
			env.AggregateID,
			env.SequenceNumber,
			env.EventType,
			env.Payload,
			env.Metadata,
			env.RecordedAt,
		).Scan(&env.GlobalSeq)
		if err != nil {
			if isConstraintViolation(err, streamSeqConstraint) {
				return fmt.Errorf("append %s/%s at version %d: %w",
					env.AggregateType, env.AggregateID, expectedVersion, ErrConcurrencyConflict)
			}
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	// Wake the projection runner on commit. pg_notify inside the
	// transaction means listeners only see the signal after the events are
	// visible.
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, first.AggregateType); err != nil {
		return fmt.Errorf("failed to notify listeners: %w", err)
	}

	s.logger.Debug("events appended",
		"aggregate_type", first.AggregateType,
		"aggregate_id", first.AggregateID,
		"count", len(envelopes),
		"head_sequence", envelopes[len(envelopes)-1].SequenceNumber,
	)

	return nil
}

// LoadInTx returns the aggregate's events in ascending sequence order.
func (s *PostgresStore) LoadInTx(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID uuid.UUID) ([]*events.Envelope, error) {
	const query = `
		SELECT event_id, aggregate_type, aggregate_id, sequence_number,
		       event_type, payload, metadata, recorded_at, global_seq
		FROM events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY sequence_number ASC
	`

	rows, err := tx.Query(ctx, query, aggregateType, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	return scanEnvelopes(rows)
}

// Load is the pool-backed variant of LoadInTx for read-only callers that do
// not need transactional coupling with other writes.
func (s *PostgresStore) Load(ctx context.Context, aggregateType string, aggregateID uuid.UUID) ([]*events.Envelope, error) {
	const query = `
		SELECT event_id, aggregate_type, aggregate_id, sequence_number,
		       event_type, payload, metadata, recorded_at, global_seq
		FROM events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY sequence_number ASC
	`

	rows, err := s.pool.Query(ctx, query, aggregateType, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	return scanEnvelopes(rows)
}

// ReadSince returns undelivered events for a projection cursor in commit
// order.
func (s *PostgresStore) ReadSince(ctx context.Context, aggregateType string, afterGlobalSeq int64, eventTypes []string, limit int) ([]*events.Envelope, error) {
	const query = `
		SELECT event_id, aggregate_type, aggregate_id, sequence_number,
		       event_type, payload, metadata, recorded_at, global_seq
		FROM events
		WHERE aggregate_type = $1
		  AND global_seq > $2
		  AND (cardinality($3::text[]) = 0 OR event_type = ANY($3))
		ORDER BY global_seq ASC
		LIMIT $4
	`

	if eventTypes == nil {
		eventTypes = []string{}
	}

	rows, err := s.pool.Query(ctx, query, aggregateType, afterGlobalSeq, eventTypes, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read events since %d: %w", afterGlobalSeq, err)
	}
	return scanEnvelopes(rows)
}

func scanEnvelopes(rows pgx.Rows) ([]*events.Envelope, error) {
	defer rows.Close()

	var result []*events.Envelope
	for rows.Next() {
		var env events.Envelope
		if err := rows.Scan(
			&env.EventID,
			&env.AggregateType,
			&env.AggregateID,
			&env.SequenceNumber,
			&env.EventType,
			&env.Payload,
			&env.Metadata,
			&env.RecordedAt,
			&env.GlobalSeq,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		result = append(result, &env)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return result, nil
}

// isConstraintViolation reports whether err is a unique violation (23505)
// on the named constraint.
func isConstraintViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// Ensure PostgresStore implements the store contracts.
var (
	_ Store  = (*PostgresStore)(nil)
	_ Reader = (*PostgresStore)(nil)
)
