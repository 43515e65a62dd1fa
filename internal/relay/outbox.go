package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// NotifyChannel is the LISTEN/NOTIFY channel signalled on every outbox
// insert.
const NotifyChannel = "mealstack_outbox"

// Entry is a row of the outbox table.
type Entry struct {
	OutboxID   uuid.UUID
	Envelope   *events.Envelope
	RetryCount int
}

// OutboxRepo persists outbox entries. Inserts run inside the command
// transaction so staging an integration event is atomic with the domain
// append; the processor later reads and deletes through the pool.
type OutboxRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewOutboxRepo creates a new OutboxRepo.
func NewOutboxRepo(pool *pgxpool.Pool, logger *slog.Logger) *OutboxRepo {
	return &OutboxRepo{
		pool:   pool,
		logger: logger.With("repository", "outbox"),
	}
}

// InsertInTx stages an event for the relay inside the command transaction
// and signals the processor on commit.
func (r *OutboxRepo) InsertInTx(ctx context.Context, tx pgx.Tx, event *events.Envelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	const query = `
		INSERT INTO outbox (outbox_id, event_payload, created_at)
		VALUES ($1, $2, NOW())
	`
	if _, err := tx.Exec(ctx, query, event.EventID, payload); err != nil {
		return fmt.Errorf("failed to insert into outbox: %w", err)
	}

	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, event.EventID.String()); err != nil {
		return fmt.Errorf("failed to notify outbox insert: %w", err)
	}

	return nil
}

// FetchPending retrieves staged entries oldest first.
func (r *OutboxRepo) FetchPending(ctx context.Context, limit int) ([]Entry, error) {
	const query = `
		SELECT outbox_id, event_payload, retry_count
		FROM outbox
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var payloadBytes []byte

		if err := rows.Scan(&entry.OutboxID, &payloadBytes, &entry.RetryCount); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}

		var envelope events.Envelope
		if err := json.Unmarshal(payloadBytes, &envelope); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
		entry.Envelope = &envelope

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox rows: %w", err)
	}

	return entries, nil
}

// Delete removes a published entry.
func (r *OutboxRepo) Delete(ctx context.Context, outboxID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM outbox WHERE outbox_id = $1`, outboxID)
	if err != nil {
		return fmt.Errorf("failed to delete from outbox: %w", err)
	}
	if result.RowsAffected() == 0 {
		r.logger.Warn("outbox entry not found for deletion", "outbox_id", outboxID)
	}
	return nil
}

// IncrementRetry bumps an entry's retry count after a failed publish.
func (r *OutboxRepo) IncrementRetry(ctx context.Context, outboxID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox SET retry_count = retry_count + 1 WHERE outbox_id = $1`, outboxID)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}
