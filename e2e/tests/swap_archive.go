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
		Name:        "swap-archive",
		Description: "Swap a meal slot, then archive the plan and verify cleanup",
		Run:         runSwapArchiveTest,
	})
}

func runSwapArchiveTest(ctx context.Context, cfg *runner.Config) error {
	c := &client.Config{BaseURL: cfg.BaseURL}

	userID, err := client.RegisterUser(ctx, c, client.UniqueEmail("e2e-swap"), "E2E Tester", "free")
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	for i := 0; i < 7; i++ {
		recipeID, err := client.CreateRecipe(ctx, c, userID,
			fmt.Sprintf("Rotation %d", i), []string{"salt"})
		if err != nil {
			return fmt.Errorf("failed to create recipe: %w", err)
		}
		if err := client.FavoriteRecipe(ctx, c, userID, recipeID); err != nil {
			return fmt.Errorf("failed to favorite recipe: %w", err)
		}
	}

	planID, err := client.GeneratePlan(ctx, c, userID, "2026-03-02", 1)
	if err != nil {
		return fmt.Errorf("failed to generate plan: %w", err)
	}
	if _, err := client.WaitForSchedule(ctx, c, planID, 21, 5*time.Second); err != nil {
		return err
	}

	// Swap Wednesday dinner to a freshly created recipe.
	spare, err := client.CreateRecipe(ctx, c, userID, "Backup Chili", []string{"chili"})
	if err != nil {
		return fmt.Errorf("failed to create spare recipe: %w", err)
	}
	if err := client.SwapMeal(ctx, c, planID, userID, 0, 2, "dinner", spare); err != nil {
		return fmt.Errorf("failed to swap meal: %w", err)
	}

	// Poll until the swap is visible.
	deadline := time.Now().Add(5 * time.Second)
	for {
		slots, err := client.GetPlanSchedule(ctx, c, planID)
		if err != nil {
			return err
		}
		var found bool
		for _, slot := range slots {
			if slot.Week == 0 && slot.Day == 2 && slot.Course == "dinner" && slot.RecipeID == spare {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("swap was not projected within deadline")
		}
		time.Sleep(100 * time.Millisecond)
	}

	// Archive and verify the schedule empties out.
	if err := client.ArchivePlan(ctx, c, planID, userID); err != nil {
		return fmt.Errorf("failed to archive plan: %w", err)
	}
	if _, err := client.WaitForSchedule(ctx, c, planID, 0, 5*time.Second); err != nil {
		return err
	}

	// Archived plans reject further mutations.
	err = client.SwapMeal(ctx, c, planID, userID, 0, 0, "lunch", spare)
	if apiErr, ok := err.(*client.APIError); !ok || apiErr.StatusCode != 409 {
		return fmt.Errorf("expected 409 for swap on archived plan, got %v", err)
	}
	return nil
}
