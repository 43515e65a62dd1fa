package projections

import (
	"context"
	"strings"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealstack/mealstack/internal/domain/recipe"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// shoppingTx records every statement so tests can assert which tables an
// Apply touched. The affected-weeks lookup returns the seeded slots.
type shoppingTx struct {
	fakeTx
	statements []string
	planWeeks  []scheduledWeek
}

type scheduledWeek struct {
	planID uuid.UUID
	week   int
}

func (t *shoppingTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	t.statements = append(t.statements, sql)
	return pgconn.CommandTag{}, nil
}

func (t *shoppingTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	t.statements = append(t.statements, sql)
	return &scheduledWeekRows{weeks: t.planWeeks}, nil
}

func (t *shoppingTx) touched(table string) bool {
	for _, sql := range t.statements {
		if strings.Contains(sql, table) {
			return true
		}
	}
	return false
}

// scheduledWeekRows plays back (plan_id, week) pairs as pgx.Rows.
type scheduledWeekRows struct {
	weeks []scheduledWeek
	pos   int
}

func (r *scheduledWeekRows) Close()                                       {}
func (r *scheduledWeekRows) Err() error                                   { return nil }
func (r *scheduledWeekRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *scheduledWeekRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *scheduledWeekRows) Values() ([]any, error)                       { return nil, nil }
func (r *scheduledWeekRows) RawValues() [][]byte                          { return nil }
func (r *scheduledWeekRows) Conn() *pgx.Conn                              { return nil }

func (r *scheduledWeekRows) Next() bool {
	if r.pos >= len(r.weeks) {
		return false
	}
	r.pos++
	return true
}

func (r *scheduledWeekRows) Scan(dest ...any) error {
	w := r.weeks[r.pos-1]
	*dest[0].(*uuid.UUID) = w.planID
	*dest[1].(*int) = w.week
	return nil
}

func wrapRecipeEvent(t *testing.T, recipeID uuid.UUID, payload events.Payload) *events.Envelope {
	t.Helper()
	env, err := events.Wrap(events.AggregateRecipe, recipeID, payload, events.Metadata{Source: "test"})
	require.NoError(t, err)
	return env
}

// Recipe and meal-plan events ride independent cursors, so a plan can be
// projected before the recipe it schedules. Both created and updated must
// then rebuild every week already holding the recipe, or the view stays
// missing its ingredients forever.
func TestShoppingListRecipeEventsRebuildScheduledWeeks(t *testing.T) {
	recipeID := uuid.Must(uuid.NewV4())
	planID := uuid.Must(uuid.NewV4())

	payloads := map[string]events.Payload{
		"created": recipe.Created{RecipeID: recipeID, Title: "Chili", Ingredients: []string{"beans"}},
		"updated": recipe.Updated{Title: "Chili", Ingredients: []string{"beans", "rice"}},
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			tx := &shoppingTx{planWeeks: []scheduledWeek{{planID: planID, week: 1}}}

			err := NewShoppingList().Apply(context.Background(), tx, wrapRecipeEvent(t, recipeID, payload))
			require.NoError(t, err)

			assert.True(t, tx.touched("shopping_recipe_ingredients"), "must refresh the ingredient row")
			assert.True(t, tx.touched("shopping_list_view"), "must rebuild weeks already scheduling the recipe")
		})
	}
}

func TestShoppingListRecipeCreatedWithNoScheduledWeeks(t *testing.T) {
	tx := &shoppingTx{}

	recipeID := uuid.Must(uuid.NewV4())
	payload := recipe.Created{RecipeID: recipeID, Title: "Chili", Ingredients: []string{"beans"}}
	err := NewShoppingList().Apply(context.Background(), tx, wrapRecipeEvent(t, recipeID, payload))
	require.NoError(t, err)

	assert.True(t, tx.touched("shopping_recipe_ingredients"))
	assert.False(t, tx.touched("shopping_list_view"), "no plan schedules the recipe yet, nothing to rebuild")
}
