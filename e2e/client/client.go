// Package client is a thin HTTP client for the mealstack API, used by the
// e2e tests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
}

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is a non-2xx response, preserved so tests can assert on the
// status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// UniqueEmail generates a unique email for test isolation.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
}

func do(ctx context.Context, cfg *Config, method, path string, reqBody, respBody any) error {
	var reader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		json.Unmarshal(raw, &errResp)
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if respBody != nil {
		if err := json.Unmarshal(raw, respBody); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// RegisterUser creates an account and returns the user ID.
func RegisterUser(ctx context.Context, cfg *Config, email, name, tier string) (string, error) {
	var resp struct {
		UserID string `json:"user_id"`
	}
	err := do(ctx, cfg, http.MethodPost, "/api/v1/users",
		map[string]string{"email": email, "name": name, "tier": tier}, &resp)
	return resp.UserID, err
}

// CreateRecipe adds a recipe and returns its ID.
func CreateRecipe(ctx context.Context, cfg *Config, ownerID, title string, ingredients []string) (string, error) {
	var resp struct {
		RecipeID string `json:"recipe_id"`
	}
	err := do(ctx, cfg, http.MethodPost, "/api/v1/recipes",
		map[string]any{"owner_id": ownerID, "title": title, "ingredients": ingredients}, &resp)
	return resp.RecipeID, err
}

// FavoriteRecipe marks a recipe as a favorite.
func FavoriteRecipe(ctx context.Context, cfg *Config, userID, recipeID string) error {
	return do(ctx, cfg, http.MethodPost, "/api/v1/recipes/"+recipeID+"/favorite",
		map[string]string{"user_id": userID}, nil)
}

// GeneratePlan creates a meal plan and returns its ID.
func GeneratePlan(ctx context.Context, cfg *Config, userID, startDate string, weeks int) (string, error) {
	var resp struct {
		PlanID string `json:"plan_id"`
	}
	err := do(ctx, cfg, http.MethodPost, "/api/v1/meal-plans",
		map[string]any{"user_id": userID, "start_date": startDate, "weeks": weeks}, &resp)
	return resp.PlanID, err
}

// SwapMeal replaces one slot's recipe.
func SwapMeal(ctx context.Context, cfg *Config, planID, userID string, week, day int, course, recipeID string) error {
	return do(ctx, cfg, http.MethodPost, "/api/v1/meal-plans/"+planID+"/swap",
		map[string]any{"user_id": userID, "week": week, "day": day, "course": course, "recipe_id": recipeID}, nil)
}

// ArchivePlan retires a meal plan.
func ArchivePlan(ctx context.Context, cfg *Config, planID, userID string) error {
	return do(ctx, cfg, http.MethodPost, "/api/v1/meal-plans/"+planID+"/archive",
		map[string]string{"user_id": userID}, nil)
}

// User is a user-directory row from the query API.
type User struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Tier   string `json:"tier"`
}

// GetUser fetches a user from the read model. Returns nil if not yet
// projected.
func GetUser(ctx context.Context, cfg *Config, userID string) (*User, error) {
	var u User
	err := do(ctx, cfg, http.MethodGet, "/api/v1/users/"+userID, nil, &u)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Assignment is a meal-schedule row from the query API.
type Assignment struct {
	Week        int    `json:"week"`
	Day         int    `json:"day"`
	Course      string `json:"course"`
	RecipeID    string `json:"recipe_id"`
	RecipeTitle string `json:"recipe_title"`
	MealDate    string `json:"meal_date"`
}

// GetPlanSchedule fetches a plan's slot grid.
func GetPlanSchedule(ctx context.Context, cfg *Config, planID string) ([]Assignment, error) {
	var resp struct {
		Assignments []Assignment `json:"assignments"`
	}
	if err := do(ctx, cfg, http.MethodGet, "/api/v1/meal-plans/"+planID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Assignments, nil
}

// ShoppingItem is a shopping-list row from the query API.
type ShoppingItem struct {
	Ingredient string `json:"ingredient"`
	MealCount  int    `json:"meal_count"`
}

// GetShoppingList fetches one week's aggregated shopping list.
func GetShoppingList(ctx context.Context, cfg *Config, planID string, week int) ([]ShoppingItem, error) {
	var resp struct {
		Items []ShoppingItem `json:"items"`
	}
	path := fmt.Sprintf("/api/v1/shopping-list/%s/%d", planID, week)
	if err := do(ctx, cfg, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// WaitForUser polls the user read model until the row appears or the
// timeout expires. Read models are eventually consistent behind the
// projection runner.
func WaitForUser(ctx context.Context, cfg *Config, userID string, timeout time.Duration) (*User, error) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		u, err := GetUser(ctx, cfg, userID)
		if err != nil {
			return nil, err
		}
		if u != nil {
			return u, nil
		}

		time.Sleep(100 * time.Millisecond)
	}

	return nil, fmt.Errorf("timeout waiting for user %s to be projected", userID)
}

// WaitForSchedule polls until the plan's schedule reaches the expected
// number of slots.
func WaitForSchedule(ctx context.Context, cfg *Config, planID string, want int, timeout time.Duration) ([]Assignment, error) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		slots, err := GetPlanSchedule(ctx, cfg, planID)
		if err != nil {
			return nil, err
		}
		if len(slots) == want {
			return slots, nil
		}

		time.Sleep(100 * time.Millisecond)
	}

	return nil, fmt.Errorf("timeout waiting for plan %s to reach %d slots", planID, want)
}

// CheckHealth checks the health endpoint.
func CheckHealth(ctx context.Context, cfg *Config) error {
	return do(ctx, cfg, http.MethodGet, "/health", nil, nil)
}
