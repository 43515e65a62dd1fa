package projections

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mealstack/mealstack/internal/domain/user"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// UserDirectory maintains the users table: one row per registered
// account with its current tier.
type UserDirectory struct{}

// NewUserDirectory creates the user directory projection.
func NewUserDirectory() *UserDirectory { return &UserDirectory{} }

// Name implements Handler.
func (*UserDirectory) Name() string { return "user_directory" }

// AggregateTypes implements Handler.
func (*UserDirectory) AggregateTypes() []string { return []string{events.AggregateUser} }

// EventTypes implements Handler.
func (*UserDirectory) EventTypes() []string { return user.EventTypes() }

// Apply implements Handler.
func (p *UserDirectory) Apply(ctx context.Context, tx pgx.Tx, env *events.Envelope) error {
	switch env.EventType {
	case user.EventRegistered:
		var payload user.Registered
		if err := env.ParsePayload(&payload); err != nil {
			return err
		}
		// Upsert keeps redelivery idempotent; registered_at sticks to the
		// first delivery's event time.
		const query = `
			INSERT INTO users (user_id, email, name, tier, registered_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (user_id) DO UPDATE
			SET email = EXCLUDED.email,
			    name = EXCLUDED.name,
			    tier = EXCLUDED.tier,
			    updated_at = EXCLUDED.updated_at
		`
		_, err := tx.Exec(ctx, query,
			env.AggregateID, payload.Email, payload.Name, string(payload.Tier), env.RecordedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert user row: %w", err)
		}
		return nil

	case user.EventTierChanged:
		var payload user.TierChanged
		if err := env.ParsePayload(&payload); err != nil {
			return err
		}
		const query = `
			UPDATE users SET tier = $2, updated_at = $3 WHERE user_id = $1
		`
		_, err := tx.Exec(ctx, query, env.AggregateID, string(payload.Tier), env.RecordedAt)
		if err != nil {
			return fmt.Errorf("failed to update user tier: %w", err)
		}
		return nil
	}
	return nil
}

// Ensure UserDirectory implements Handler.
var _ Handler = (*UserDirectory)(nil)
