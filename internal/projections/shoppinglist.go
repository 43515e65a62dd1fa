package projections

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mealstack/mealstack/internal/domain/mealplan"
	"github.com/mealstack/mealstack/internal/domain/recipe"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// ShoppingList maintains shopping_list_view: per plan and week, each
// distinct ingredient with the number of meals that call for it.
//
// It is the one projection that joins two aggregate kinds. Two helper
// tables it also owns carry the raw inputs: shopping_recipe_ingredients
// (current ingredient list per recipe) and shopping_plan_slots (which
// recipe sits in which slot). Every change recomputes the affected
// weeks from the helper tables with delete-and-reinsert, which makes
// redelivery trivially idempotent.
type ShoppingList struct{}

// NewShoppingList creates the shopping list projection.
func NewShoppingList() *ShoppingList { return &ShoppingList{} }

// Name implements Handler.
func (*ShoppingList) Name() string { return "shopping_list" }

// AggregateTypes implements Handler.
func (*ShoppingList) AggregateTypes() []string {
	return []string{events.AggregateRecipe, events.AggregateMealPlan}
}

// EventTypes implements Handler.
func (*ShoppingList) EventTypes() []string {
	return []string{
		recipe.EventCreated, recipe.EventUpdated, recipe.EventDeleted,
		mealplan.EventGenerated, mealplan.EventMealSwapped, mealplan.EventArchived,
	}
}

// Apply implements Handler.
func (p *ShoppingList) Apply(ctx context.Context, tx pgx.Tx, env *events.Envelope) error {
	switch env.EventType {
	case recipe.EventCreated:
		var payload recipe.Created
		if err := env.ParsePayload(&payload); err != nil {
			return err
		}
		if err := p.upsertIngredients(ctx, tx, env.AggregateID, payload.Ingredients); err != nil {
			return err
		}
		// Recipe and meal-plan streams ride independent cursors, so a plan
		// referencing this recipe may already be projected. Its weeks were
		// computed without the ingredient row and must be rebuilt now.
		return p.recomputeWeeksUsingRecipe(ctx, tx, env.AggregateID)

	case recipe.EventUpdated:
		var payload recipe.Updated
		if err := env.ParsePayload(&payload); err != nil {
			return err
		}
		if err := p.upsertIngredients(ctx, tx, env.AggregateID, payload.Ingredients); err != nil {
			return err
		}
		return p.recomputeWeeksUsingRecipe(ctx, tx, env.AggregateID)

	case recipe.EventDeleted:
		if _, err := tx.Exec(ctx,
			`DELETE FROM shopping_recipe_ingredients WHERE recipe_id = $1`, env.AggregateID); err != nil {
			return fmt.Errorf("failed to delete recipe ingredients: %w", err)
		}
		return p.recomputeWeeksUsingRecipe(ctx, tx, env.AggregateID)

	case mealplan.EventGenerated:
		var payload mealplan.Generated
		if err := env.ParsePayload(&payload); err != nil {
			return err
		}
		const query = `
			INSERT INTO shopping_plan_slots
				(plan_id, week, day, course, user_id, week_start, recipe_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (plan_id, week, day, course) DO UPDATE
			SET recipe_id = EXCLUDED.recipe_id
		`
		for _, a := range payload.Assignments {
			_, err := tx.Exec(ctx, query,
				env.AggregateID, a.Week, a.Day, a.Course,
				payload.UserID, mealplan.MealDate(payload.StartDate, a.Week, 0), a.RecipeID)
			if err != nil {
				return fmt.Errorf("failed to upsert plan slot: %w", err)
			}
		}
		for week := 0; week < payload.Weeks; week++ {
			if err := p.recomputeWeek(ctx, tx, env.AggregateID, week); err != nil {
				return err
			}
		}
		return nil

	case mealplan.EventMealSwapped:
		var payload mealplan.MealSwapped
		if err := env.ParsePayload(&payload); err != nil {
			return err
		}
		const query = `
			UPDATE shopping_plan_slots
			SET recipe_id = $5
			WHERE plan_id = $1 AND week = $2 AND day = $3 AND course = $4
		`
		if _, err := tx.Exec(ctx, query,
			env.AggregateID, payload.Week, payload.Day, payload.Course, payload.RecipeID); err != nil {
			return fmt.Errorf("failed to update swapped slot: %w", err)
		}
		return p.recomputeWeek(ctx, tx, env.AggregateID, payload.Week)

	case mealplan.EventArchived:
		if _, err := tx.Exec(ctx,
			`DELETE FROM shopping_plan_slots WHERE plan_id = $1`, env.AggregateID); err != nil {
			return fmt.Errorf("failed to delete plan slots: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM shopping_list_view WHERE plan_id = $1`, env.AggregateID); err != nil {
			return fmt.Errorf("failed to delete shopping list rows: %w", err)
		}
		return nil
	}
	return nil
}

func (p *ShoppingList) upsertIngredients(ctx context.Context, tx pgx.Tx, recipeID uuid.UUID, ingredients []string) error {
	const query = `
		INSERT INTO shopping_recipe_ingredients (recipe_id, ingredients)
		VALUES ($1, $2)
		ON CONFLICT (recipe_id) DO UPDATE SET ingredients = EXCLUDED.ingredients
	`
	if _, err := tx.Exec(ctx, query, recipeID, ingredients); err != nil {
		return fmt.Errorf("failed to upsert recipe ingredients: %w", err)
	}
	return nil
}

// recomputeWeeksUsingRecipe recomputes every (plan, week) that has the
// recipe scheduled anywhere.
func (p *ShoppingList) recomputeWeeksUsingRecipe(ctx context.Context, tx pgx.Tx, recipeID uuid.UUID) error {
	rows, err := tx.Query(ctx,
		`SELECT DISTINCT plan_id, week FROM shopping_plan_slots WHERE recipe_id = $1`, recipeID)
	if err != nil {
		return fmt.Errorf("failed to find weeks using recipe: %w", err)
	}

	type planWeek struct {
		planID uuid.UUID
		week   int
	}
	var affected []planWeek
	for rows.Next() {
		var pw planWeek
		if err := rows.Scan(&pw.planID, &pw.week); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan affected week: %w", err)
		}
		affected = append(affected, pw)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read affected weeks: %w", err)
	}

	for _, pw := range affected {
		if err := p.recomputeWeek(ctx, tx, pw.planID, pw.week); err != nil {
			return err
		}
	}
	return nil
}

// recomputeWeek rebuilds one week's shopping list rows from the helper
// tables. Recipes whose ingredient row is gone (deleted recipes)
// contribute nothing.
func (p *ShoppingList) recomputeWeek(ctx context.Context, tx pgx.Tx, planID uuid.UUID, week int) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM shopping_list_view WHERE plan_id = $1 AND week = $2`, planID, week); err != nil {
		return fmt.Errorf("failed to clear shopping list week: %w", err)
	}

	const query = `
		INSERT INTO shopping_list_view (plan_id, week, ingredient, user_id, week_start, meal_count)
		SELECT s.plan_id, s.week, ing.ingredient, s.user_id, s.week_start, COUNT(*)
		FROM shopping_plan_slots s
		JOIN shopping_recipe_ingredients r ON r.recipe_id = s.recipe_id
		CROSS JOIN LATERAL unnest(r.ingredients) AS ing(ingredient)
		WHERE s.plan_id = $1 AND s.week = $2
		GROUP BY s.plan_id, s.week, ing.ingredient, s.user_id, s.week_start
	`
	if _, err := tx.Exec(ctx, query, planID, week); err != nil {
		return fmt.Errorf("failed to rebuild shopping list week: %w", err)
	}
	return nil
}

// Ensure ShoppingList implements Handler.
var _ Handler = (*ShoppingList)(nil)
