package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mealstack/mealstack/internal/domain"
	"github.com/mealstack/mealstack/internal/domain/mealplan"
)

// SideTables groups the strongly-consistent constraint tables. They are
// written in the same transaction as the event append, because the
// eventually-consistent read model cannot safely enforce uniqueness or
// counting constraints.
type SideTables interface {
	// ReserveEmail claims an email for a user. Returns a uniqueness domain
	// error if the email is already registered.
	ReserveEmail(ctx context.Context, tx pgx.Tx, email string, userID uuid.UUID) error

	// IncrementRecipeCount adds one to the user's recipe count, failing
	// with a limit domain error if the count would exceed limit.
	IncrementRecipeCount(ctx context.Context, tx pgx.Tx, userID uuid.UUID, limit int) error

	// DecrementRecipeCount subtracts one from the user's recipe count.
	DecrementRecipeCount(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error

	// AddFavorite records a favorite. Idempotent.
	AddFavorite(ctx context.Context, tx pgx.Tx, userID, recipeID uuid.UUID, title string) error

	// RemoveFavorite removes a favorite. Removing a non-favorite is a no-op.
	RemoveFavorite(ctx context.Context, tx pgx.Tx, userID, recipeID uuid.UUID) error

	// ListFavorites returns the user's favorites ordered by recipe ID, so
	// plan generation sees a deterministic sequence.
	ListFavorites(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]mealplan.Favorite, error)
}

// PostgresSideTables implements SideTables on PostgreSQL.
type PostgresSideTables struct {
	logger *slog.Logger
}

// NewPostgresSideTables creates a new PostgresSideTables. All methods run
// on the caller's transaction, so no pool is held here.
func NewPostgresSideTables(logger *slog.Logger) *PostgresSideTables {
	return &PostgresSideTables{
		logger: logger.With("repository", "side_tables"),
	}
}

// ReserveEmail implements SideTables.
func (s *PostgresSideTables) ReserveEmail(ctx context.Context, tx pgx.Tx, email string, userID uuid.UUID) error {
	const query = `INSERT INTO user_emails (email, user_id) VALUES ($1, $2)`

	if _, err := tx.Exec(ctx, query, email, userID); err != nil {
		if isUniqueViolation(err) {
			return domain.NewError(domain.ErrUniqueness, "email %s is already registered", email)
		}
		return fmt.Errorf("failed to reserve email: %w", err)
	}
	return nil
}

// IncrementRecipeCount implements SideTables. The conditional upsert only
// takes effect while the count is below the limit; zero rows back means the
// limit was hit.
func (s *PostgresSideTables) IncrementRecipeCount(ctx context.Context, tx pgx.Tx, userID uuid.UUID, limit int) error {
	const query = `
		INSERT INTO user_recipe_counts (user_id, recipe_count)
		VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE
		SET recipe_count = user_recipe_counts.recipe_count + 1
		WHERE user_recipe_counts.recipe_count < $2
		RETURNING recipe_count
	`

	var count int
	err := tx.QueryRow(ctx, query, userID, limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewError(domain.ErrLimitExceeded, "recipe limit of %d for your tier has been reached", limit)
	}
	if err != nil {
		return fmt.Errorf("failed to increment recipe count: %w", err)
	}
	return nil
}

// DecrementRecipeCount implements SideTables.
func (s *PostgresSideTables) DecrementRecipeCount(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	const query = `
		UPDATE user_recipe_counts
		SET recipe_count = GREATEST(recipe_count - 1, 0)
		WHERE user_id = $1
	`

	if _, err := tx.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to decrement recipe count: %w", err)
	}
	return nil
}

// AddFavorite implements SideTables.
func (s *PostgresSideTables) AddFavorite(ctx context.Context, tx pgx.Tx, userID, recipeID uuid.UUID, title string) error {
	const query = `
		INSERT INTO user_favorites (user_id, recipe_id, title)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, recipe_id) DO UPDATE SET title = EXCLUDED.title
	`

	if _, err := tx.Exec(ctx, query, userID, recipeID, title); err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return nil
}

// RemoveFavorite implements SideTables.
func (s *PostgresSideTables) RemoveFavorite(ctx context.Context, tx pgx.Tx, userID, recipeID uuid.UUID) error {
	const query = `DELETE FROM user_favorites WHERE user_id = $1 AND recipe_id = $2`

	if _, err := tx.Exec(ctx, query, userID, recipeID); err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

// ListFavorites implements SideTables.
func (s *PostgresSideTables) ListFavorites(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]mealplan.Favorite, error) {
	const query = `
		SELECT recipe_id, title
		FROM user_favorites
		WHERE user_id = $1
		ORDER BY recipe_id ASC
	`

	rows, err := tx.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	var favorites []mealplan.Favorite
	for rows.Next() {
		var fav mealplan.Favorite
		if err := rows.Scan(&fav.RecipeID, &fav.Title); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		favorites = append(favorites, fav)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating favorites: %w", err)
	}

	return favorites, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 is unique_violation
		return pgErr.Code == "23505"
	}
	return false
}

// Ensure PostgresSideTables implements SideTables.
var _ SideTables = (*PostgresSideTables)(nil)
