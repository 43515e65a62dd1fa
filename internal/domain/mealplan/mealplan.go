// Package mealplan is the meal-plan aggregate: Uninitialized -> Active ->
// Archived. A plan covers N weeks of 7 days x 3 courses; generation
// requires at least MinFavorites favorited recipes, supplied to the
// command from the strongly-consistent favorites side table. Assignment of
// recipes to slots is a plain deterministic rotation; smarter variety
// heuristics live outside this aggregate.
package mealplan

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/mealstack/mealstack/internal/domain"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

const (
	// DaysPerWeek and CoursesPerDay define the plan grid.
	DaysPerWeek   = 7
	CoursesPerDay = 3

	// MinFavorites is the smallest favorite set a plan can rotate over.
	MinFavorites = 7

	// MaxWeeks bounds how far ahead a single plan may reach.
	MaxWeeks = 8
)

// Courses in slot order.
var Courses = [CoursesPerDay]string{"breakfast", "lunch", "dinner"}

// Status is the aggregate lifecycle state.
type Status int

const (
	StatusUninitialized Status = iota
	StatusActive
	StatusArchived
)

// State is the folded plan state.
type State struct {
	ID          uuid.UUID
	Status      Status
	UserID      uuid.UUID
	StartDate   time.Time
	Weeks       int
	Assignments map[SlotKey]Assignment
}

// SlotKey addresses one meal slot within a plan.
type SlotKey struct {
	Week   int
	Day    int
	Course string
}

// Initial returns the state of an aggregate with no events.
func Initial() State {
	return State{Status: StatusUninitialized}
}

// Apply folds one event into the state. Total and deterministic.
func Apply(s State, env *events.Envelope) State {
	switch env.EventType {
	case EventGenerated:
		var p Generated
		mustParse(env, &p)
		s.ID = p.PlanID
		s.Status = StatusActive
		s.UserID = p.UserID
		s.StartDate = p.StartDate
		s.Weeks = p.Weeks
		s.Assignments = make(map[SlotKey]Assignment, len(p.Assignments))
		for _, a := range p.Assignments {
			s.Assignments[SlotKey{Week: a.Week, Day: a.Day, Course: a.Course}] = a
		}
	case EventMealSwapped:
		var p MealSwapped
		mustParse(env, &p)
		key := SlotKey{Week: p.Week, Day: p.Day, Course: p.Course}
		s.Assignments[key] = Assignment{
			Week:        p.Week,
			Day:         p.Day,
			Course:      p.Course,
			RecipeID:    p.RecipeID,
			RecipeTitle: p.RecipeTitle,
		}
	case EventArchived:
		s.Status = StatusArchived
	}
	return s
}

// Fold replays an ordered event sequence from the initial state.
func Fold(envs []*events.Envelope) State {
	s := Initial()
	for _, env := range envs {
		s = Apply(s, env)
	}
	return s
}

func mustParse(env *events.Envelope, v any) {
	if err := env.ParsePayload(v); err != nil {
		panic(fmt.Sprintf("malformed %s payload for %s: %v", env.EventType, env.AggregateID, err))
	}
}

// Favorite is one entry of the user's favorite set at generation time.
type Favorite struct {
	RecipeID uuid.UUID
	Title    string
}

// Generate creates a plan covering Weeks weeks starting at StartDate.
// Favorites must already be sorted deterministically (the command layer
// orders them by recipe ID) so replaying the command input yields the same
// assignments.
type Generate struct {
	PlanID    uuid.UUID
	UserID    uuid.UUID
	StartDate time.Time
	Weeks     int
	Favorites []Favorite
}

// DecideGenerate validates plan generation and emits the full assignment
// grid: 7 days x 3 courses x Weeks slots, rotating over the favorite set.
func DecideGenerate(s State, cmd Generate) ([]events.Payload, error) {
	if s.Status != StatusUninitialized {
		return nil, domain.NewError(domain.ErrInvalidState, "meal plan already exists")
	}
	if cmd.Weeks < 1 {
		return nil, domain.NewError(domain.ErrValidation, "plan must cover at least one week")
	}
	if cmd.Weeks > MaxWeeks {
		return nil, domain.NewError(domain.ErrLimitExceeded, "plan cannot cover more than %d weeks", MaxWeeks)
	}
	if cmd.StartDate.IsZero() {
		return nil, domain.NewError(domain.ErrValidation, "a start date is required")
	}
	if len(cmd.Favorites) < MinFavorites {
		return nil, domain.NewError(domain.ErrInsufficientFavorites,
			"at least %d favorite recipes are required to generate a plan (have %d)",
			MinFavorites, len(cmd.Favorites))
	}

	startDate := cmd.StartDate.UTC().Truncate(24 * time.Hour)

	assignments := make([]Assignment, 0, cmd.Weeks*DaysPerWeek*CoursesPerDay)
	slot := 0
	for week := 0; week < cmd.Weeks; week++ {
		for day := 0; day < DaysPerWeek; day++ {
			for courseIdx := 0; courseIdx < CoursesPerDay; courseIdx++ {
				fav := cmd.Favorites[slot%len(cmd.Favorites)]
				assignments = append(assignments, Assignment{
					Week:        week,
					Day:         day,
					Course:      Courses[courseIdx],
					RecipeID:    fav.RecipeID,
					RecipeTitle: fav.Title,
				})
				slot++
			}
		}
	}

	return []events.Payload{Generated{
		PlanID:      cmd.PlanID,
		UserID:      cmd.UserID,
		StartDate:   startDate,
		Weeks:       cmd.Weeks,
		Assignments: assignments,
	}}, nil
}

// Swap replaces the recipe in one slot of an active plan.
type Swap struct {
	Week        int
	Day         int
	Course      string
	RecipeID    uuid.UUID
	RecipeTitle string
}

// DecideSwap validates a slot swap against the folded state. Swapping a
// slot to the recipe it already holds is a no-op.
func DecideSwap(s State, cmd Swap) ([]events.Payload, error) {
	if s.Status == StatusUninitialized {
		return nil, domain.NewError(domain.ErrInvalidState, "meal plan does not exist")
	}
	if s.Status == StatusArchived {
		return nil, domain.NewError(domain.ErrInvalidState, "meal plan has been archived")
	}

	key := SlotKey{Week: cmd.Week, Day: cmd.Day, Course: cmd.Course}
	current, ok := s.Assignments[key]
	if !ok {
		return nil, domain.NewError(domain.ErrValidation,
			"plan has no slot week=%d day=%d course=%s", cmd.Week, cmd.Day, cmd.Course)
	}
	if current.RecipeID == cmd.RecipeID {
		return nil, nil
	}

	return []events.Payload{MealSwapped{
		Week:        cmd.Week,
		Day:         cmd.Day,
		Course:      cmd.Course,
		RecipeID:    cmd.RecipeID,
		RecipeTitle: cmd.RecipeTitle,
	}}, nil
}

// DecideArchive retires the plan. Archived plans reject every further
// mutating command.
func DecideArchive(s State) ([]events.Payload, error) {
	if s.Status == StatusUninitialized {
		return nil, domain.NewError(domain.ErrInvalidState, "meal plan does not exist")
	}
	if s.Status == StatusArchived {
		return nil, domain.NewError(domain.ErrInvalidState, "meal plan has already been archived")
	}
	return []events.Payload{Archived{}}, nil
}

// MealDate returns the calendar date of a slot within a plan that started
// at startDate.
func MealDate(startDate time.Time, week, day int) time.Time {
	return startDate.AddDate(0, 0, week*DaysPerWeek+day)
}
