package tests

import (
	"context"
	"fmt"
	"time"

	"github.com/mealstack/mealstack/e2e/client"
	"github.com/mealstack/mealstack/e2e/runner"
)

func init() {
	runner.Register(&runner.Test{
		Name:        "full-flow",
		Description: "Register, build a recipe box, generate a plan, verify read models",
		Run:         runFullFlowTest,
	})
}

func runFullFlowTest(ctx context.Context, cfg *runner.Config) error {
	c := &client.Config{BaseURL: cfg.BaseURL}

	if err := client.CheckHealth(ctx, c); err != nil {
		return fmt.Errorf("service not healthy: %w", err)
	}

	// 1. Register and wait for the user directory to catch up.
	email := client.UniqueEmail("e2e-full")
	userID, err := client.RegisterUser(ctx, c, email, "E2E Tester", "free")
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	u, err := client.WaitForUser(ctx, c, userID, 5*time.Second)
	if err != nil {
		return err
	}
	if u.Email != email {
		return fmt.Errorf("expected projected email %s, got %s", email, u.Email)
	}

	// 2. Create and favorite seven recipes, the minimum for a plan.
	for i := 0; i < 7; i++ {
		recipeID, err := client.CreateRecipe(ctx, c, userID,
			fmt.Sprintf("E2E Recipe %d", i),
			[]string{"salt", fmt.Sprintf("ingredient-%d", i)})
		if err != nil {
			return fmt.Errorf("failed to create recipe %d: %w", i, err)
		}
		if err := client.FavoriteRecipe(ctx, c, userID, recipeID); err != nil {
			return fmt.Errorf("failed to favorite recipe %d: %w", i, err)
		}
	}

	// 3. Generate a one-week plan and wait for the full grid.
	planID, err := client.GeneratePlan(ctx, c, userID, "2026-03-02", 1)
	if err != nil {
		return fmt.Errorf("failed to generate plan: %w", err)
	}

	slots, err := client.WaitForSchedule(ctx, c, planID, 21, 5*time.Second)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if slot.RecipeTitle == "" {
			return fmt.Errorf("slot w%d/d%d/%s has no recipe title", slot.Week, slot.Day, slot.Course)
		}
	}

	// 4. The week's shopping list aggregates the shared ingredient across
	// all 21 meals.
	items, err := client.GetShoppingList(ctx, c, planID, 0)
	if err != nil {
		return fmt.Errorf("failed to fetch shopping list: %w", err)
	}
	for _, it := range items {
		if it.Ingredient == "salt" {
			if it.MealCount != 21 {
				return fmt.Errorf("expected salt in 21 meals, got %d", it.MealCount)
			}
			return nil
		}
	}
	return fmt.Errorf("shared ingredient missing from shopping list (%d items)", len(items))
}
