package projections

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mealstack/mealstack/internal/domain/mealplan"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// MealSchedule maintains the meal_assignments table: one row per slot of
// every active plan, with the concrete calendar date materialized.
type MealSchedule struct{}

// NewMealSchedule creates the meal schedule projection.
func NewMealSchedule() *MealSchedule { return &MealSchedule{} }

// Name implements Handler.
func (*MealSchedule) Name() string { return "meal_schedule" }

// AggregateTypes implements Handler.
func (*MealSchedule) AggregateTypes() []string { return []string{events.AggregateMealPlan} }

// EventTypes implements Handler.
func (*MealSchedule) EventTypes() []string { return mealplan.EventTypes() }

// Apply implements Handler.
func (p *MealSchedule) Apply(ctx context.Context, tx pgx.Tx, env *events.Envelope) error {
	switch env.EventType {
	case mealplan.EventGenerated:
		var payload mealplan.Generated
		if err := env.ParsePayload(&payload); err != nil {
			return err
		}
		const query = `
			INSERT INTO meal_assignments
				(plan_id, week, day, course, user_id, recipe_id, recipe_title, meal_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (plan_id, week, day, course) DO UPDATE
			SET recipe_id = EXCLUDED.recipe_id,
			    recipe_title = EXCLUDED.recipe_title
		`
		for _, a := range payload.Assignments {
			_, err := tx.Exec(ctx, query,
				env.AggregateID, a.Week, a.Day, a.Course,
				payload.UserID, a.RecipeID, a.RecipeTitle,
				mealplan.MealDate(payload.StartDate, a.Week, a.Day))
			if err != nil {
				return fmt.Errorf("failed to upsert meal assignment: %w", err)
			}
		}
		return nil

	case mealplan.EventMealSwapped:
		var payload mealplan.MealSwapped
		if err := env.ParsePayload(&payload); err != nil {
			return err
		}
		// The slot row always exists by ordering within the stream; a
		// zero-row update only happens after the plan was archived.
		const query = `
			UPDATE meal_assignments
			SET recipe_id = $5, recipe_title = $6
			WHERE plan_id = $1 AND week = $2 AND day = $3 AND course = $4
		`
		_, err := tx.Exec(ctx, query,
			env.AggregateID, payload.Week, payload.Day, payload.Course,
			payload.RecipeID, payload.RecipeTitle)
		if err != nil {
			return fmt.Errorf("failed to apply meal swap: %w", err)
		}
		return nil

	case mealplan.EventArchived:
		_, err := tx.Exec(ctx, `DELETE FROM meal_assignments WHERE plan_id = $1`, env.AggregateID)
		if err != nil {
			return fmt.Errorf("failed to clear archived plan: %w", err)
		}
		return nil
	}
	return nil
}

// Ensure MealSchedule implements Handler.
var _ Handler = (*MealSchedule)(nil)
