package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealstack/mealstack/internal/commands"
	"github.com/mealstack/mealstack/internal/domain"
	"github.com/mealstack/mealstack/internal/domain/recipe"
	"github.com/mealstack/mealstack/internal/domain/user"
	"github.com/mealstack/mealstack/internal/eventstore"
	"github.com/mealstack/mealstack/internal/queries"
)

// fakeCommands returns canned results per command.
type fakeCommands struct {
	registerErr error
	createErr   error
	generateErr error
	swapErr     error
	lastCreate  recipe.Create
}

func (f *fakeCommands) RegisterUser(_ context.Context, cmd user.Register) (uuid.UUID, error) {
	if f.registerErr != nil {
		return uuid.Nil, f.registerErr
	}
	return uuid.Must(uuid.NewV4()), nil
}

func (f *fakeCommands) ChangeUserTier(_ context.Context, _ uuid.UUID, _ user.Tier) error {
	return nil
}

func (f *fakeCommands) CreateRecipe(_ context.Context, cmd recipe.Create) (uuid.UUID, error) {
	f.lastCreate = cmd
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	return uuid.Must(uuid.NewV4()), nil
}

func (f *fakeCommands) UpdateRecipe(_ context.Context, _, _ uuid.UUID, _ recipe.Update) error {
	return nil
}
func (f *fakeCommands) FavoriteRecipe(_ context.Context, _, _ uuid.UUID) error   { return nil }
func (f *fakeCommands) UnfavoriteRecipe(_ context.Context, _, _ uuid.UUID) error { return nil }
func (f *fakeCommands) DeleteRecipe(_ context.Context, _, _ uuid.UUID) error     { return nil }

func (f *fakeCommands) GenerateMealPlan(_ context.Context, _ commands.GeneratePlan) (uuid.UUID, error) {
	if f.generateErr != nil {
		return uuid.Nil, f.generateErr
	}
	return uuid.Must(uuid.NewV4()), nil
}

func (f *fakeCommands) SwapMeal(_ context.Context, _ commands.SwapMealSlot) error { return f.swapErr }
func (f *fakeCommands) ArchiveMealPlan(_ context.Context, _, _ uuid.UUID) error   { return nil }

// fakeQueries serves canned read-model rows.
type fakeQueries struct {
	user     *queries.User
	recipes  []queries.Recipe
	shopping []queries.ShoppingItem
}

func (f *fakeQueries) GetUser(_ context.Context, _ uuid.UUID) (*queries.User, error) {
	if f.user == nil {
		return nil, queries.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeQueries) ListRecipes(_ context.Context, _ uuid.UUID) ([]queries.Recipe, error) {
	return f.recipes, nil
}

func (f *fakeQueries) Dashboard(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]queries.DashboardMeal, error) {
	return nil, nil
}

func (f *fakeQueries) PlanSchedule(_ context.Context, _ uuid.UUID) ([]queries.MealAssignment, error) {
	return nil, nil
}

func (f *fakeQueries) ShoppingList(_ context.Context, _ uuid.UUID, _ int) ([]queries.ShoppingItem, error) {
	return f.shopping, nil
}

func newTestServer(cmds *fakeCommands, q *fakeQueries) *httptest.Server {
	handler := NewHandler(cmds, q, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestRegisterUserRoute(t *testing.T) {
	srv := newTestServer(&fakeCommands{}, &fakeQueries{})
	defer srv.Close()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/users",
		`{"email":"ada@example.com","name":"Ada","tier":"free"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["user_id"])
}

func TestRegisterUserDuplicateEmail(t *testing.T) {
	srv := newTestServer(&fakeCommands{
		registerErr: domain.NewError(domain.ErrUniqueness, "email ada@example.com is already registered"),
	}, &fakeQueries{})
	defer srv.Close()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/users",
		`{"email":"ada@example.com","name":"Ada"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "already registered")
}

func TestCreateRecipeTierLimit(t *testing.T) {
	srv := newTestServer(&fakeCommands{
		createErr: domain.NewError(domain.ErrLimitExceeded, "recipe limit of 25 for your tier has been reached"),
	}, &fakeQueries{})
	defer srv.Close()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/recipes",
		`{"owner_id":"`+uuid.Must(uuid.NewV4()).String()+`","title":"Soup","ingredients":["water"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["error"], "recipe limit")
}

func TestGeneratePlanInsufficientFavorites(t *testing.T) {
	srv := newTestServer(&fakeCommands{
		generateErr: domain.NewError(domain.ErrInsufficientFavorites, "meal plan needs at least 7 favorite recipes, have 3"),
	}, &fakeQueries{})
	defer srv.Close()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/meal-plans",
		`{"user_id":"`+uuid.Must(uuid.NewV4()).String()+`","start_date":"2026-03-02","weeks":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["error"], "favorite")
}

func TestGeneratePlanRejectsBadDate(t *testing.T) {
	srv := newTestServer(&fakeCommands{}, &fakeQueries{})
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/meal-plans",
		`{"user_id":"`+uuid.Must(uuid.NewV4()).String()+`","start_date":"03/02/2026","weeks":2}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSwapMealConcurrencyConflict(t *testing.T) {
	srv := newTestServer(&fakeCommands{
		swapErr: eventstore.ErrConcurrencyConflict,
	}, &fakeQueries{})
	defer srv.Close()

	resp, body := doJSON(t, http.MethodPost,
		srv.URL+"/api/v1/meal-plans/"+uuid.Must(uuid.NewV4()).String()+"/swap",
		`{"user_id":"`+uuid.Must(uuid.NewV4()).String()+`","week":0,"day":1,"course":"dinner","recipe_id":"`+uuid.Must(uuid.NewV4()).String()+`"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "modified concurrently")
}

func TestGetUserNotFound(t *testing.T) {
	srv := newTestServer(&fakeCommands{}, &fakeQueries{})
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/users/"+uuid.Must(uuid.NewV4()).String(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRecipesRequiresOwner(t *testing.T) {
	srv := newTestServer(&fakeCommands{}, &fakeQueries{})
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/recipes", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShoppingListRoute(t *testing.T) {
	srv := newTestServer(&fakeCommands{}, &fakeQueries{
		shopping: []queries.ShoppingItem{
			{Ingredient: "lentils", MealCount: 3},
			{Ingredient: "onion", MealCount: 5},
		},
	})
	defer srv.Close()

	resp, body := doJSON(t, http.MethodGet,
		srv.URL+"/api/v1/shopping-list/"+uuid.Must(uuid.NewV4()).String()+"/0", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	assert.Len(t, items, 2)

	resp, _ = doJSON(t, http.MethodGet,
		srv.URL+"/api/v1/shopping-list/"+uuid.Must(uuid.NewV4()).String()+"/nope", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
