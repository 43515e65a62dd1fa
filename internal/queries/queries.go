// Package queries reads the projection-owned tables on behalf of the HTTP
// layer. It never touches the event store or side tables: everything here
// is eventually consistent by design.
package queries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when the requested row does not exist (or is not
// yet projected).
var ErrNotFound = errors.New("not found")

// Queries is the read-model repository.
type Queries struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a read-model query repository.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Queries {
	return &Queries{
		pool:   pool,
		logger: logger.With("repository", "queries"),
	}
}

// User is a row of the users table.
type User struct {
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Tier         string    `json:"tier"`
	RegisteredAt time.Time `json:"registered_at"`
}

// GetUser returns one user from the directory.
func (q *Queries) GetUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	const query = `
		SELECT user_id, email, name, tier, registered_at
		FROM users
		WHERE user_id = $1
	`

	var u User
	err := q.pool.QueryRow(ctx, query, userID).Scan(
		&u.UserID, &u.Email, &u.Name, &u.Tier, &u.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// Recipe is a row of the recipe_list table.
type Recipe struct {
	RecipeID    uuid.UUID `json:"recipe_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Title       string    `json:"title"`
	Ingredients []string  `json:"ingredients"`
	Favorite    bool      `json:"favorite"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListRecipes returns the owner's recipes, favorites first, then newest
// first.
func (q *Queries) ListRecipes(ctx context.Context, ownerID uuid.UUID) ([]Recipe, error) {
	const query = `
		SELECT recipe_id, owner_id, title, ingredients, favorite, created_at, updated_at
		FROM recipe_list
		WHERE owner_id = $1
		ORDER BY favorite DESC, created_at DESC
	`

	rows, err := q.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	var recipes []Recipe
	for rows.Next() {
		var r Recipe
		if err := rows.Scan(&r.RecipeID, &r.OwnerID, &r.Title, &r.Ingredients,
			&r.Favorite, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recipe row: %w", err)
		}
		recipes = append(recipes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipe rows: %w", err)
	}
	return recipes, nil
}

// DashboardMeal is a row of the dashboard_meals table.
type DashboardMeal struct {
	MealDate    time.Time `json:"meal_date"`
	Course      string    `json:"course"`
	PlanID      uuid.UUID `json:"plan_id"`
	RecipeID    uuid.UUID `json:"recipe_id"`
	RecipeTitle string    `json:"recipe_title"`
}

// Dashboard returns the user's meals in [from, to], ordered by date then
// course position (breakfast, lunch, dinner).
func (q *Queries) Dashboard(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]DashboardMeal, error) {
	const query = `
		SELECT meal_date, course, plan_id, recipe_id, recipe_title
		FROM dashboard_meals
		WHERE user_id = $1 AND meal_date BETWEEN $2 AND $3
		ORDER BY meal_date,
			CASE course WHEN 'breakfast' THEN 0 WHEN 'lunch' THEN 1 ELSE 2 END
	`

	rows, err := q.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query dashboard: %w", err)
	}
	defer rows.Close()

	var meals []DashboardMeal
	for rows.Next() {
		var m DashboardMeal
		if err := rows.Scan(&m.MealDate, &m.Course, &m.PlanID, &m.RecipeID, &m.RecipeTitle); err != nil {
			return nil, fmt.Errorf("failed to scan dashboard row: %w", err)
		}
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dashboard rows: %w", err)
	}
	return meals, nil
}

// MealAssignment is a row of the meal_assignments table.
type MealAssignment struct {
	Week        int       `json:"week"`
	Day         int       `json:"day"`
	Course      string    `json:"course"`
	RecipeID    uuid.UUID `json:"recipe_id"`
	RecipeTitle string    `json:"recipe_title"`
	MealDate    time.Time `json:"meal_date"`
}

// PlanSchedule returns the full slot grid of one plan in calendar order.
func (q *Queries) PlanSchedule(ctx context.Context, planID uuid.UUID) ([]MealAssignment, error) {
	const query = `
		SELECT week, day, course, recipe_id, recipe_title, meal_date
		FROM meal_assignments
		WHERE plan_id = $1
		ORDER BY week, day,
			CASE course WHEN 'breakfast' THEN 0 WHEN 'lunch' THEN 1 ELSE 2 END
	`

	rows, err := q.pool.Query(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan schedule: %w", err)
	}
	defer rows.Close()

	var slots []MealAssignment
	for rows.Next() {
		var a MealAssignment
		if err := rows.Scan(&a.Week, &a.Day, &a.Course, &a.RecipeID, &a.RecipeTitle, &a.MealDate); err != nil {
			return nil, fmt.Errorf("failed to scan assignment row: %w", err)
		}
		slots = append(slots, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignment rows: %w", err)
	}
	return slots, nil
}

// ShoppingItem is a row of the shopping_list_view table.
type ShoppingItem struct {
	Ingredient string    `json:"ingredient"`
	MealCount  int       `json:"meal_count"`
	WeekStart  time.Time `json:"week_start"`
}

// ShoppingList returns the aggregated ingredient list for one week of a
// plan, alphabetized.
func (q *Queries) ShoppingList(ctx context.Context, planID uuid.UUID, week int) ([]ShoppingItem, error) {
	const query = `
		SELECT ingredient, meal_count, week_start
		FROM shopping_list_view
		WHERE plan_id = $1 AND week = $2
		ORDER BY ingredient
	`

	rows, err := q.pool.Query(ctx, query, planID, week)
	if err != nil {
		return nil, fmt.Errorf("failed to query shopping list: %w", err)
	}
	defer rows.Close()

	var items []ShoppingItem
	for rows.Next() {
		var it ShoppingItem
		if err := rows.Scan(&it.Ingredient, &it.MealCount, &it.WeekStart); err != nil {
			return nil, fmt.Errorf("failed to scan shopping list row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shopping list rows: %w", err)
	}
	return items, nil
}
