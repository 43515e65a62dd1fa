package projections

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mealstack/mealstack/internal/domain/mealplan"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// Dashboard maintains dashboard_meals, the per-user date-keyed view the
// home screen reads to show what's cooking on a given day.
type Dashboard struct{}

// NewDashboard creates the dashboard projection.
func NewDashboard() *Dashboard { return &Dashboard{} }

// Name implements Handler.
func (*Dashboard) Name() string { return "dashboard" }

// AggregateTypes implements Handler.
func (*Dashboard) AggregateTypes() []string { return []string{events.AggregateMealPlan} }

// EventTypes implements Handler.
func (*Dashboard) EventTypes() []string { return mealplan.EventTypes() }

// Apply implements Handler.
func (p *Dashboard) Apply(ctx context.Context, tx pgx.Tx, env *events.Envelope) error {
	switch env.EventType {
	case mealplan.EventGenerated:
		var payload mealplan.Generated
		if err := env.ParsePayload(&payload); err != nil {
			return err
		}
		// Week and day are stored alongside the date so later swaps,
		// which carry only slot coordinates, can find their row.
		const query = `
			INSERT INTO dashboard_meals
				(user_id, meal_date, course, plan_id, week, day, recipe_id, recipe_title)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (user_id, meal_date, course) DO UPDATE
			SET plan_id = EXCLUDED.plan_id,
			    week = EXCLUDED.week,
			    day = EXCLUDED.day,
			    recipe_id = EXCLUDED.recipe_id,
			    recipe_title = EXCLUDED.recipe_title
		`
		for _, a := range payload.Assignments {
			_, err := tx.Exec(ctx, query,
				payload.UserID, mealplan.MealDate(payload.StartDate, a.Week, a.Day), a.Course,
				env.AggregateID, a.Week, a.Day, a.RecipeID, a.RecipeTitle)
			if err != nil {
				return fmt.Errorf("failed to upsert dashboard meal: %w", err)
			}
		}
		return nil

	case mealplan.EventMealSwapped:
		var payload mealplan.MealSwapped
		if err := env.ParsePayload(&payload); err != nil {
			return err
		}
		const query = `
			UPDATE dashboard_meals
			SET recipe_id = $5, recipe_title = $6
			WHERE plan_id = $1 AND week = $2 AND day = $3 AND course = $4
		`
		_, err := tx.Exec(ctx, query,
			env.AggregateID, payload.Week, payload.Day, payload.Course,
			payload.RecipeID, payload.RecipeTitle)
		if err != nil {
			return fmt.Errorf("failed to apply dashboard swap: %w", err)
		}
		return nil

	case mealplan.EventArchived:
		_, err := tx.Exec(ctx, `DELETE FROM dashboard_meals WHERE plan_id = $1`, env.AggregateID)
		if err != nil {
			return fmt.Errorf("failed to clear archived plan from dashboard: %w", err)
		}
		return nil
	}
	return nil
}

// Ensure Dashboard implements Handler.
var _ Handler = (*Dashboard)(nil)
