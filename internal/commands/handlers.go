// Package commands is the write side of the application. Every handler
// follows the same shape inside one database transaction: load the target
// aggregate's events, fold them to current state, run any side-table
// constraint checks, ask the aggregate to decide, and append the resulting
// events with an expected-version check. Failure at any step rolls the
// whole transaction back, so partial event or side-table writes are never
// observable.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mealstack/mealstack/internal/domain"
	"github.com/mealstack/mealstack/internal/domain/mealplan"
	"github.com/mealstack/mealstack/internal/domain/recipe"
	"github.com/mealstack/mealstack/internal/domain/user"
	"github.com/mealstack/mealstack/internal/eventstore"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// TxBeginner opens database transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OutboxWriter stages committed events for the integration-event relay in
// the same transaction as the append.
type OutboxWriter interface {
	InsertInTx(ctx context.Context, tx pgx.Tx, env *events.Envelope) error
}

// Handlers is the command-side entry point. It is the only inbound surface
// of the core: the web layer turns each HTTP action into exactly one
// handler invocation.
type Handlers struct {
	db     TxBeginner
	store  eventstore.Store
	side   SideTables
	outbox OutboxWriter // nil when the relay is disabled
	logger *slog.Logger
}

// NewHandlers creates the command handlers. outbox may be nil.
func NewHandlers(db TxBeginner, store eventstore.Store, side SideTables, outbox OutboxWriter, logger *slog.Logger) *Handlers {
	return &Handlers{
		db:     db,
		store:  store,
		side:   side,
		outbox: outbox,
		logger: logger.With("component", "commands"),
	}
}

// withTx runs fn inside one transaction, committing on success.
func (h *Handlers) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := h.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// append wraps the decided payloads, appends them at the expected version,
// and stages them on the outbox when the relay is enabled.
func (h *Handlers) append(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID uuid.UUID, expectedVersion int64, payloads []events.Payload) error {
	if len(payloads) == 0 {
		return nil
	}

	envelopes, err := events.WrapAll(aggregateType, aggregateID, payloads, events.Metadata{
		Source:        "mealstack",
		SchemaVersion: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to wrap events: %w", err)
	}

	if err := h.store.AppendInTx(ctx, tx, expectedVersion, envelopes); err != nil {
		return err
	}

	if h.outbox != nil {
		for _, env := range envelopes {
			if err := h.outbox.InsertInTx(ctx, tx, env); err != nil {
				return err
			}
		}
	}

	return nil
}

// RegisterUser creates an account. The email uniqueness claim commits
// atomically with the user.registered event.
func (h *Handlers) RegisterUser(ctx context.Context, cmd user.Register) (uuid.UUID, error) {
	if cmd.UserID == uuid.Nil {
		cmd.UserID = uuid.Must(uuid.NewV4())
	}

	err := h.withTx(ctx, func(tx pgx.Tx) error {
		history, err := h.store.LoadInTx(ctx, tx, events.AggregateUser, cmd.UserID)
		if err != nil {
			return err
		}

		payloads, err := user.DecideRegister(user.Fold(history), cmd)
		if err != nil {
			return err
		}

		registered := payloads[0].(user.Registered)
		if err := h.side.ReserveEmail(ctx, tx, registered.Email, cmd.UserID); err != nil {
			return err
		}

		return h.append(ctx, tx, events.AggregateUser, cmd.UserID, int64(len(history)), payloads)
	})
	if err != nil {
		return uuid.Nil, err
	}

	h.logger.Info("user registered", "user_id", cmd.UserID)
	return cmd.UserID, nil
}

// ChangeUserTier moves an account between subscription levels.
func (h *Handlers) ChangeUserTier(ctx context.Context, userID uuid.UUID, tier user.Tier) error {
	return h.withTx(ctx, func(tx pgx.Tx) error {
		history, err := h.store.LoadInTx(ctx, tx, events.AggregateUser, userID)
		if err != nil {
			return err
		}

		payloads, err := user.DecideChangeTier(user.Fold(history), user.ChangeTier{Tier: tier})
		if err != nil {
			return err
		}

		return h.append(ctx, tx, events.AggregateUser, userID, int64(len(history)), payloads)
	})
}

// loadActiveUser folds the user stream and rejects commands against
// accounts that do not exist.
func (h *Handlers) loadActiveUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (user.State, error) {
	history, err := h.store.LoadInTx(ctx, tx, events.AggregateUser, userID)
	if err != nil {
		return user.State{}, err
	}
	state := user.Fold(history)
	if state.Status != user.StatusActive {
		return user.State{}, domain.NewError(domain.ErrInvalidState, "account is not registered")
	}
	return state, nil
}

// CreateRecipe adds a recipe, checking the owner's tier limit against the
// recipe-count side table in the same transaction.
func (h *Handlers) CreateRecipe(ctx context.Context, cmd recipe.Create) (uuid.UUID, error) {
	if cmd.RecipeID == uuid.Nil {
		cmd.RecipeID = uuid.Must(uuid.NewV4())
	}

	err := h.withTx(ctx, func(tx pgx.Tx) error {
		owner, err := h.loadActiveUser(ctx, tx, cmd.OwnerID)
		if err != nil {
			return err
		}

		history, err := h.store.LoadInTx(ctx, tx, events.AggregateRecipe, cmd.RecipeID)
		if err != nil {
			return err
		}

		payloads, err := recipe.DecideCreate(recipe.Fold(history), cmd)
		if err != nil {
			return err
		}

		if err := h.side.IncrementRecipeCount(ctx, tx, cmd.OwnerID, owner.Tier.RecipeLimit()); err != nil {
			return err
		}

		return h.append(ctx, tx, events.AggregateRecipe, cmd.RecipeID, int64(len(history)), payloads)
	})
	if err != nil {
		return uuid.Nil, err
	}

	h.logger.Info("recipe created", "recipe_id", cmd.RecipeID, "owner_id", cmd.OwnerID)
	return cmd.RecipeID, nil
}

// loadOwnedRecipe folds the recipe stream and checks the caller owns it.
func (h *Handlers) loadOwnedRecipe(ctx context.Context, tx pgx.Tx, recipeID, callerID uuid.UUID) (recipe.State, int64, error) {
	history, err := h.store.LoadInTx(ctx, tx, events.AggregateRecipe, recipeID)
	if err != nil {
		return recipe.State{}, 0, err
	}
	state := recipe.Fold(history)
	if state.Status != recipe.StatusUninitialized && state.OwnerID != callerID {
		return recipe.State{}, 0, domain.NewError(domain.ErrValidation, "recipe does not belong to this account")
	}
	return state, int64(len(history)), nil
}

// UpdateRecipe replaces a recipe's title and ingredients.
func (h *Handlers) UpdateRecipe(ctx context.Context, callerID, recipeID uuid.UUID, cmd recipe.Update) error {
	return h.withTx(ctx, func(tx pgx.Tx) error {
		state, version, err := h.loadOwnedRecipe(ctx, tx, recipeID, callerID)
		if err != nil {
			return err
		}

		payloads, err := recipe.DecideUpdate(state, cmd)
		if err != nil {
			return err
		}

		// Keep the favorites side table's embedded title current so plans
		// generated later carry the new name.
		if state.Favorite && len(payloads) > 0 {
			updated := payloads[0].(recipe.Updated)
			if err := h.side.AddFavorite(ctx, tx, callerID, recipeID, updated.Title); err != nil {
				return err
			}
		}

		return h.append(ctx, tx, events.AggregateRecipe, recipeID, version, payloads)
	})
}

// FavoriteRecipe marks a recipe as a favorite and records it in the
// favorites side table for plan generation.
func (h *Handlers) FavoriteRecipe(ctx context.Context, callerID, recipeID uuid.UUID) error {
	return h.withTx(ctx, func(tx pgx.Tx) error {
		state, version, err := h.loadOwnedRecipe(ctx, tx, recipeID, callerID)
		if err != nil {
			return err
		}

		payloads, err := recipe.DecideFavorite(state)
		if err != nil {
			return err
		}
		if len(payloads) == 0 {
			return nil
		}

		if err := h.side.AddFavorite(ctx, tx, callerID, recipeID, state.Title); err != nil {
			return err
		}

		return h.append(ctx, tx, events.AggregateRecipe, recipeID, version, payloads)
	})
}

// UnfavoriteRecipe removes the favorite mark.
func (h *Handlers) UnfavoriteRecipe(ctx context.Context, callerID, recipeID uuid.UUID) error {
	return h.withTx(ctx, func(tx pgx.Tx) error {
		state, version, err := h.loadOwnedRecipe(ctx, tx, recipeID, callerID)
		if err != nil {
			return err
		}

		payloads, err := recipe.DecideUnfavorite(state)
		if err != nil {
			return err
		}
		if len(payloads) == 0 {
			return nil
		}

		if err := h.side.RemoveFavorite(ctx, tx, callerID, recipeID); err != nil {
			return err
		}

		return h.append(ctx, tx, events.AggregateRecipe, recipeID, version, payloads)
	})
}

// DeleteRecipe soft-deletes a recipe, releasing its slot in the owner's
// recipe count and dropping it from the favorites side table.
func (h *Handlers) DeleteRecipe(ctx context.Context, callerID, recipeID uuid.UUID) error {
	return h.withTx(ctx, func(tx pgx.Tx) error {
		state, version, err := h.loadOwnedRecipe(ctx, tx, recipeID, callerID)
		if err != nil {
			return err
		}

		payloads, err := recipe.DecideDelete(state)
		if err != nil {
			return err
		}

		if err := h.side.DecrementRecipeCount(ctx, tx, callerID); err != nil {
			return err
		}
		if err := h.side.RemoveFavorite(ctx, tx, callerID, recipeID); err != nil {
			return err
		}

		return h.append(ctx, tx, events.AggregateRecipe, recipeID, version, payloads)
	})
}

// GeneratePlan is the plan-generation command as received from the web
// layer; the favorite set is resolved inside the transaction.
type GeneratePlan struct {
	PlanID    uuid.UUID
	UserID    uuid.UUID
	StartDate time.Time
	Weeks     int
}

// GenerateMealPlan creates a multi-week plan from the user's favorites.
func (h *Handlers) GenerateMealPlan(ctx context.Context, cmd GeneratePlan) (uuid.UUID, error) {
	if cmd.PlanID == uuid.Nil {
		cmd.PlanID = uuid.Must(uuid.NewV4())
	}

	err := h.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := h.loadActiveUser(ctx, tx, cmd.UserID); err != nil {
			return err
		}

		favorites, err := h.side.ListFavorites(ctx, tx, cmd.UserID)
		if err != nil {
			return err
		}

		history, err := h.store.LoadInTx(ctx, tx, events.AggregateMealPlan, cmd.PlanID)
		if err != nil {
			return err
		}

		payloads, err := mealplan.DecideGenerate(mealplan.Fold(history), mealplan.Generate{
			PlanID:    cmd.PlanID,
			UserID:    cmd.UserID,
			StartDate: cmd.StartDate,
			Weeks:     cmd.Weeks,
			Favorites: favorites,
		})
		if err != nil {
			return err
		}

		return h.append(ctx, tx, events.AggregateMealPlan, cmd.PlanID, int64(len(history)), payloads)
	})
	if err != nil {
		return uuid.Nil, err
	}

	h.logger.Info("meal plan generated", "plan_id", cmd.PlanID, "user_id", cmd.UserID, "weeks", cmd.Weeks)
	return cmd.PlanID, nil
}

// SwapMealSlot is the slot-swap command as received from the web layer.
type SwapMealSlot struct {
	PlanID   uuid.UUID
	UserID   uuid.UUID
	Week     int
	Day      int
	Course   string
	RecipeID uuid.UUID
}

// SwapMeal replaces the recipe in one slot of an active plan. The
// replacement recipe must exist, be active, and belong to the same user.
func (h *Handlers) SwapMeal(ctx context.Context, cmd SwapMealSlot) error {
	return h.withTx(ctx, func(tx pgx.Tx) error {
		recipeState, _, err := h.loadOwnedRecipe(ctx, tx, cmd.RecipeID, cmd.UserID)
		if err != nil {
			return err
		}
		if recipeState.Status != recipe.StatusActive {
			return domain.NewError(domain.ErrInvalidState, "replacement recipe does not exist")
		}

		history, err := h.store.LoadInTx(ctx, tx, events.AggregateMealPlan, cmd.PlanID)
		if err != nil {
			return err
		}
		planState := mealplan.Fold(history)
		if planState.Status != mealplan.StatusUninitialized && planState.UserID != cmd.UserID {
			return domain.NewError(domain.ErrValidation, "meal plan does not belong to this account")
		}

		payloads, err := mealplan.DecideSwap(planState, mealplan.Swap{
			Week:        cmd.Week,
			Day:         cmd.Day,
			Course:      cmd.Course,
			RecipeID:    cmd.RecipeID,
			RecipeTitle: recipeState.Title,
		})
		if err != nil {
			return err
		}

		return h.append(ctx, tx, events.AggregateMealPlan, cmd.PlanID, int64(len(history)), payloads)
	})
}

// ArchiveMealPlan retires an active plan.
func (h *Handlers) ArchiveMealPlan(ctx context.Context, callerID, planID uuid.UUID) error {
	return h.withTx(ctx, func(tx pgx.Tx) error {
		history, err := h.store.LoadInTx(ctx, tx, events.AggregateMealPlan, planID)
		if err != nil {
			return err
		}
		state := mealplan.Fold(history)
		if state.Status != mealplan.StatusUninitialized && state.UserID != callerID {
			return domain.NewError(domain.ErrValidation, "meal plan does not belong to this account")
		}

		payloads, err := mealplan.DecideArchive(state)
		if err != nil {
			return err
		}

		return h.append(ctx, tx, events.AggregateMealPlan, planID, int64(len(history)), payloads)
	})
}
