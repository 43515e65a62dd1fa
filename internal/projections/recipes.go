package projections

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mealstack/mealstack/internal/domain/recipe"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// RecipeList maintains the recipe_list table backing the recipe browsing
// and search screens.
type RecipeList struct{}

// NewRecipeList creates the recipe list projection.
func NewRecipeList() *RecipeList { return &RecipeList{} }

// Name implements Handler.
func (*RecipeList) Name() string { return "recipe_list" }

// AggregateTypes implements Handler.
func (*RecipeList) AggregateTypes() []string { return []string{events.AggregateRecipe} }

// EventTypes implements Handler.
func (*RecipeList) EventTypes() []string { return recipe.EventTypes() }

// Apply implements Handler.
func (p *RecipeList) Apply(ctx context.Context, tx pgx.Tx, env *events.Envelope) error {
	switch env.EventType {
	case recipe.EventCreated:
		var payload recipe.Created
		if err := env.ParsePayload(&payload); err != nil {
			return err
		}
		const query = `
			INSERT INTO recipe_list (recipe_id, owner_id, title, ingredients, favorite, created_at, updated_at)
			VALUES ($1, $2, $3, $4, FALSE, $5, $5)
			ON CONFLICT (recipe_id) DO UPDATE
			SET owner_id = EXCLUDED.owner_id,
			    title = EXCLUDED.title,
			    ingredients = EXCLUDED.ingredients,
			    updated_at = EXCLUDED.updated_at
		`
		_, err := tx.Exec(ctx, query,
			env.AggregateID, payload.OwnerID, payload.Title, payload.Ingredients, env.RecordedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert recipe row: %w", err)
		}
		return nil

	case recipe.EventUpdated:
		var payload recipe.Updated
		if err := env.ParsePayload(&payload); err != nil {
			return err
		}
		const query = `
			UPDATE recipe_list
			SET title = $2, ingredients = $3, updated_at = $4
			WHERE recipe_id = $1
		`
		_, err := tx.Exec(ctx, query, env.AggregateID, payload.Title, payload.Ingredients, env.RecordedAt)
		if err != nil {
			return fmt.Errorf("failed to update recipe row: %w", err)
		}
		return nil

	case recipe.EventFavorited, recipe.EventUnfavorited:
		const query = `
			UPDATE recipe_list SET favorite = $2, updated_at = $3 WHERE recipe_id = $1
		`
		_, err := tx.Exec(ctx, query, env.AggregateID, env.EventType == recipe.EventFavorited, env.RecordedAt)
		if err != nil {
			return fmt.Errorf("failed to update favorite flag: %w", err)
		}
		return nil

	case recipe.EventDeleted:
		// Deleted recipes drop out of the listing entirely; the event
		// log remains the source of truth for history.
		_, err := tx.Exec(ctx, `DELETE FROM recipe_list WHERE recipe_id = $1`, env.AggregateID)
		if err != nil {
			return fmt.Errorf("failed to delete recipe row: %w", err)
		}
		return nil
	}
	return nil
}

// Ensure RecipeList implements Handler.
var _ Handler = (*RecipeList)(nil)
