package mealplan

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Event type discriminators for the meal-plan aggregate.
const (
	EventGenerated   = "meal_plan.generated"
	EventMealSwapped = "meal_plan.meal_swapped"
	EventArchived    = "meal_plan.archived"
)

// EventTypes lists every event type the meal-plan aggregate emits.
func EventTypes() []string {
	return []string{EventGenerated, EventMealSwapped, EventArchived}
}

// Assignment places one recipe in one meal slot. Recipe titles are
// embedded so projections never look back at the recipe aggregate.
type Assignment struct {
	Week        int       `json:"week"`
	Day         int       `json:"day"`
	Course      string    `json:"course"`
	RecipeID    uuid.UUID `json:"recipe_id"`
	RecipeTitle string    `json:"recipe_title"`
}

// Generated is emitted when a plan is created, carrying the full
// assignment grid.
type Generated struct {
	PlanID      uuid.UUID    `json:"plan_id"`
	UserID      uuid.UUID    `json:"user_id"`
	StartDate   time.Time    `json:"start_date"`
	Weeks       int          `json:"weeks"`
	Assignments []Assignment `json:"assignments"`
}

// EventType implements events.Payload.
func (Generated) EventType() string { return EventGenerated }

// MealSwapped is emitted when one slot's recipe is replaced.
type MealSwapped struct {
	Week        int       `json:"week"`
	Day         int       `json:"day"`
	Course      string    `json:"course"`
	RecipeID    uuid.UUID `json:"recipe_id"`
	RecipeTitle string    `json:"recipe_title"`
}

// EventType implements events.Payload.
func (MealSwapped) EventType() string { return EventMealSwapped }

// Archived is emitted when a plan is retired.
type Archived struct{}

// EventType implements events.Payload.
func (Archived) EventType() string { return EventArchived }
