package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/mealstack/mealstack/internal/commands"
	"github.com/mealstack/mealstack/internal/domain"
	"github.com/mealstack/mealstack/internal/domain/recipe"
	"github.com/mealstack/mealstack/internal/domain/user"
	"github.com/mealstack/mealstack/internal/eventstore"
	"github.com/mealstack/mealstack/internal/queries"
)

// CommandService is the slice of the command layer the HTTP surface uses.
// *commands.Handlers satisfies it.
type CommandService interface {
	RegisterUser(ctx context.Context, cmd user.Register) (uuid.UUID, error)
	ChangeUserTier(ctx context.Context, userID uuid.UUID, tier user.Tier) error
	CreateRecipe(ctx context.Context, cmd recipe.Create) (uuid.UUID, error)
	UpdateRecipe(ctx context.Context, callerID, recipeID uuid.UUID, cmd recipe.Update) error
	FavoriteRecipe(ctx context.Context, callerID, recipeID uuid.UUID) error
	UnfavoriteRecipe(ctx context.Context, callerID, recipeID uuid.UUID) error
	DeleteRecipe(ctx context.Context, callerID, recipeID uuid.UUID) error
	GenerateMealPlan(ctx context.Context, cmd commands.GeneratePlan) (uuid.UUID, error)
	SwapMeal(ctx context.Context, cmd commands.SwapMealSlot) error
	ArchiveMealPlan(ctx context.Context, callerID, planID uuid.UUID) error
}

// QueryService is the slice of the read-model layer the HTTP surface uses.
// *queries.Queries satisfies it.
type QueryService interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*queries.User, error)
	ListRecipes(ctx context.Context, ownerID uuid.UUID) ([]queries.Recipe, error)
	Dashboard(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]queries.DashboardMeal, error)
	PlanSchedule(ctx context.Context, planID uuid.UUID) ([]queries.MealAssignment, error)
	ShoppingList(ctx context.Context, planID uuid.UUID, week int) ([]queries.ShoppingItem, error)
}

// Handler handles HTTP requests for the web service.
type Handler struct {
	commands CommandService
	queries  QueryService
	logger   *slog.Logger
}

// NewHandler creates a new web HTTP handler.
func NewHandler(cmds CommandService, q QueryService, logger *slog.Logger) *Handler {
	return &Handler{
		commands: cmds,
		queries:  q,
		logger:   logger.With("handler", "web"),
	}
}

// HandleRegisterUser handles POST /api/v1/users.
func (h *Handler) HandleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Tier  string `json:"tier"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	var userID uuid.UUID
	err := commands.WithConflictRetry(r.Context(), func(ctx context.Context) error {
		var err error
		userID, err = h.commands.RegisterUser(ctx, user.Register{
			Email: req.Email,
			Name:  req.Name,
			Tier:  user.Tier(req.Tier),
		})
		return err
	})
	if err != nil {
		h.commandError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"user_id": userID.String()})
}

// HandleChangeTier handles POST /api/v1/users/{id}/tier.
func (h *Handler) HandleChangeTier(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Tier string `json:"tier"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	err := commands.WithConflictRetry(r.Context(), func(ctx context.Context) error {
		return h.commands.ChangeUserTier(ctx, userID, user.Tier(req.Tier))
	})
	if err != nil {
		h.commandError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleCreateRecipe handles POST /api/v1/recipes.
func (h *Handler) HandleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID     uuid.UUID `json:"owner_id"`
		Title       string    `json:"title"`
		Ingredients []string  `json:"ingredients"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	var recipeID uuid.UUID
	err := commands.WithConflictRetry(r.Context(), func(ctx context.Context) error {
		var err error
		recipeID, err = h.commands.CreateRecipe(ctx, recipe.Create{
			OwnerID:     req.OwnerID,
			Title:       req.Title,
			Ingredients: req.Ingredients,
		})
		return err
	})
	if err != nil {
		h.commandError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"recipe_id": recipeID.String()})
}

// HandleUpdateRecipe handles PUT /api/v1/recipes/{id}.
func (h *Handler) HandleUpdateRecipe(w http.ResponseWriter, r *http.Request) {
	recipeID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		UserID      uuid.UUID `json:"user_id"`
		Title       string    `json:"title"`
		Ingredients []string  `json:"ingredients"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	err := commands.WithConflictRetry(r.Context(), func(ctx context.Context) error {
		return h.commands.UpdateRecipe(ctx, req.UserID, recipeID, recipe.Update{
			Title:       req.Title,
			Ingredients: req.Ingredients,
		})
	})
	if err != nil {
		h.commandError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleFavorite handles POST /api/v1/recipes/{id}/favorite and
// /unfavorite.
func (h *Handler) HandleFavorite(favorite bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recipeID, ok := h.pathID(w, r, "id")
		if !ok {
			return
		}
		var req struct {
			UserID uuid.UUID `json:"user_id"`
		}
		if !h.decode(w, r, &req) {
			return
		}

		err := commands.WithConflictRetry(r.Context(), func(ctx context.Context) error {
			if favorite {
				return h.commands.FavoriteRecipe(ctx, req.UserID, recipeID)
			}
			return h.commands.UnfavoriteRecipe(ctx, req.UserID, recipeID)
		})
		if err != nil {
			h.commandError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// HandleDeleteRecipe handles DELETE /api/v1/recipes/{id}?user={user_id}.
func (h *Handler) HandleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	recipeID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	callerID, err := uuid.FromString(r.URL.Query().Get("user"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid or missing user parameter")
		return
	}

	err = commands.WithConflictRetry(r.Context(), func(ctx context.Context) error {
		return h.commands.DeleteRecipe(ctx, callerID, recipeID)
	})
	if err != nil {
		h.commandError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleGeneratePlan handles POST /api/v1/meal-plans.
func (h *Handler) HandleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    uuid.UUID `json:"user_id"`
		StartDate string    `json:"start_date"`
		Weeks     int       `json:"weeks"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}

	var planID uuid.UUID
	err = commands.WithConflictRetry(r.Context(), func(ctx context.Context) error {
		var err error
		planID, err = h.commands.GenerateMealPlan(ctx, commands.GeneratePlan{
			UserID:    req.UserID,
			StartDate: startDate,
			Weeks:     req.Weeks,
		})
		return err
	})
	if err != nil {
		h.commandError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"plan_id": planID.String()})
}

// HandleSwapMeal handles POST /api/v1/meal-plans/{id}/swap.
func (h *Handler) HandleSwapMeal(w http.ResponseWriter, r *http.Request) {
	planID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		UserID   uuid.UUID `json:"user_id"`
		Week     int       `json:"week"`
		Day      int       `json:"day"`
		Course   string    `json:"course"`
		RecipeID uuid.UUID `json:"recipe_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	err := commands.WithConflictRetry(r.Context(), func(ctx context.Context) error {
		return h.commands.SwapMeal(ctx, commands.SwapMealSlot{
			PlanID:   planID,
			UserID:   req.UserID,
			Week:     req.Week,
			Day:      req.Day,
			Course:   req.Course,
			RecipeID: req.RecipeID,
		})
	})
	if err != nil {
		h.commandError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleArchivePlan handles POST /api/v1/meal-plans/{id}/archive.
func (h *Handler) HandleArchivePlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	err := commands.WithConflictRetry(r.Context(), func(ctx context.Context) error {
		return h.commands.ArchiveMealPlan(ctx, req.UserID, planID)
	})
	if err != nil {
		h.commandError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

// HandleGetUser handles GET /api/v1/users/{id}.
func (h *Handler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	u, err := h.queries.GetUser(r.Context(), userID)
	if err != nil {
		h.queryError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

// HandleListRecipes handles GET /api/v1/recipes?owner={user_id}.
func (h *Handler) HandleListRecipes(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.FromString(r.URL.Query().Get("owner"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid or missing owner parameter")
		return
	}

	recipes, err := h.queries.ListRecipes(r.Context(), ownerID)
	if err != nil {
		h.queryError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"recipes": recipes})
}

// HandleDashboard handles GET /api/v1/dashboard/{user_id}?from=&to=.
// Defaults to the seven days starting today.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "user_id")
	if !ok {
		return
	}

	from := time.Now().UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, 6)
	if s := r.URL.Query().Get("from"); s != "" {
		var err error
		if from, err = time.Parse("2006-01-02", s); err != nil {
			h.writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		var err error
		if to, err = time.Parse("2006-01-02", s); err != nil {
			h.writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
	}

	meals, err := h.queries.Dashboard(r.Context(), userID, from, to)
	if err != nil {
		h.queryError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"meals": meals})
}

// HandlePlanSchedule handles GET /api/v1/meal-plans/{id}.
func (h *Handler) HandlePlanSchedule(w http.ResponseWriter, r *http.Request) {
	planID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	slots, err := h.queries.PlanSchedule(r.Context(), planID)
	if err != nil {
		h.queryError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"assignments": slots})
}

// HandleShoppingList handles GET /api/v1/shopping-list/{plan_id}/{week}.
func (h *Handler) HandleShoppingList(w http.ResponseWriter, r *http.Request) {
	planID, ok := h.pathID(w, r, "plan_id")
	if !ok {
		return
	}
	week, err := strconv.Atoi(r.PathValue("week"))
	if err != nil || week < 0 {
		h.writeError(w, http.StatusBadRequest, "week must be a non-negative integer")
		return
	}

	items, err := h.queries.ShoppingList(r.Context(), planID, week)
	if err != nil {
		h.queryError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// decode reads the JSON body into v, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// pathID parses a UUID path segment, writing a 400 on failure.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.FromString(r.PathValue(name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// commandError maps command-layer failures to HTTP statuses with
// user-facing messages.
func (h *Handler) commandError(w http.ResponseWriter, err error) {
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		h.writeError(w, http.StatusConflict, "the item was modified concurrently, please retry")
		return
	}

	var derr *domain.Error
	if errors.As(err, &derr) {
		h.writeError(w, statusForKind(derr.Kind), derr.Message)
		return
	}

	h.logger.Error("command failed", "error", err)
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrUniqueness:
		return http.StatusConflict
	case domain.ErrInvalidState:
		return http.StatusConflict
	case domain.ErrLimitExceeded, domain.ErrInsufficientFavorites:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// queryError maps read-model failures to HTTP statuses.
func (h *Handler) queryError(w http.ResponseWriter, err error) {
	if errors.Is(err, queries.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.logger.Error("query failed", "error", err)
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
