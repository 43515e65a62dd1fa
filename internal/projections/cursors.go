package projections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCursorStore implements CursorStore on the projection_cursors
// table.
type PostgresCursorStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresCursorStore creates a new PostgresCursorStore.
func NewPostgresCursorStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresCursorStore {
	return &PostgresCursorStore{
		pool:   pool,
		logger: logger.With("store", "projection_cursors"),
	}
}

// Get implements CursorStore.
func (s *PostgresCursorStore) Get(ctx context.Context, projectionName, aggregateType string) (int64, error) {
	const query = `
		SELECT last_global_seq
		FROM projection_cursors
		WHERE projection_name = $1 AND aggregate_type = $2
	`

	var seq int64
	err := s.pool.QueryRow(ctx, query, projectionName, aggregateType).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor %s/%s: %w", projectionName, aggregateType, err)
	}
	return seq, nil
}

// AdvanceInTx implements CursorStore. GREATEST guards against a stale
// writer moving a cursor backwards.
func (s *PostgresCursorStore) AdvanceInTx(ctx context.Context, tx pgx.Tx, projectionName, aggregateType string, globalSeq int64) error {
	const query = `
		INSERT INTO projection_cursors (projection_name, aggregate_type, last_global_seq, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (projection_name, aggregate_type) DO UPDATE
		SET last_global_seq = GREATEST(projection_cursors.last_global_seq, EXCLUDED.last_global_seq),
		    updated_at = NOW()
	`

	if _, err := tx.Exec(ctx, query, projectionName, aggregateType, globalSeq); err != nil {
		return fmt.Errorf("failed to advance cursor %s/%s: %w", projectionName, aggregateType, err)
	}
	return nil
}

// Ensure PostgresCursorStore implements CursorStore.
var _ CursorStore = (*PostgresCursorStore)(nil)
