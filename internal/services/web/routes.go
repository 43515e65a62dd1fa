package web

import "net/http"

// RegisterRoutes registers web service routes on the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Commands
	mux.HandleFunc("POST /api/v1/users", h.HandleRegisterUser)
	mux.HandleFunc("POST /api/v1/users/{id}/tier", h.HandleChangeTier)
	mux.HandleFunc("POST /api/v1/recipes", h.HandleCreateRecipe)
	mux.HandleFunc("PUT /api/v1/recipes/{id}", h.HandleUpdateRecipe)
	mux.HandleFunc("POST /api/v1/recipes/{id}/favorite", h.HandleFavorite(true))
	mux.HandleFunc("POST /api/v1/recipes/{id}/unfavorite", h.HandleFavorite(false))
	mux.HandleFunc("DELETE /api/v1/recipes/{id}", h.HandleDeleteRecipe)
	mux.HandleFunc("POST /api/v1/meal-plans", h.HandleGeneratePlan)
	mux.HandleFunc("POST /api/v1/meal-plans/{id}/swap", h.HandleSwapMeal)
	mux.HandleFunc("POST /api/v1/meal-plans/{id}/archive", h.HandleArchivePlan)

	// Queries (read models only)
	mux.HandleFunc("GET /api/v1/users/{id}", h.HandleGetUser)
	mux.HandleFunc("GET /api/v1/recipes", h.HandleListRecipes)
	mux.HandleFunc("GET /api/v1/dashboard/{user_id}", h.HandleDashboard)
	mux.HandleFunc("GET /api/v1/meal-plans/{id}", h.HandlePlanSchedule)
	mux.HandleFunc("GET /api/v1/shopping-list/{plan_id}/{week}", h.HandleShoppingList)
}
