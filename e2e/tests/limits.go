package tests

import (
	"context"
	"fmt"

	"github.com/mealstack/mealstack/e2e/client"
	"github.com/mealstack/mealstack/e2e/runner"
)

func init() {
	runner.Register(&runner.Test{
		Name:        "limits",
		Description: "Duplicate email and insufficient-favorites rejections",
		Run:         runLimitsTest,
	})
}

func runLimitsTest(ctx context.Context, cfg *runner.Config) error {
	c := &client.Config{BaseURL: cfg.BaseURL}

	email := client.UniqueEmail("e2e-limits")
	userID, err := client.RegisterUser(ctx, c, email, "E2E Tester", "free")
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	// Same email again must 409.
	_, err = client.RegisterUser(ctx, c, email, "Impostor", "free")
	if apiErr, ok := err.(*client.APIError); !ok || apiErr.StatusCode != 409 {
		return fmt.Errorf("expected 409 for duplicate email, got %v", err)
	}

	// A plan with no favorites must 422.
	if _, err := client.CreateRecipe(ctx, c, userID, "Unloved Recipe", []string{"salt"}); err != nil {
		return fmt.Errorf("failed to create recipe: %w", err)
	}
	_, err = client.GeneratePlan(ctx, c, userID, "2026-03-02", 1)
	if apiErr, ok := err.(*client.APIError); !ok || apiErr.StatusCode != 422 {
		return fmt.Errorf("expected 422 for plan without favorites, got %v", err)
	}

	return nil
}
