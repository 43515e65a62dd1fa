// Package recipe is the recipe aggregate: Uninitialized -> Active ->
// Deleted. Deletion is an event, not a row mutation; a deleted recipe
// rejects all further commands. The owner's tier recipe limit is enforced
// by the command layer against a strongly-consistent side table.
package recipe

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/mealstack/mealstack/internal/domain"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// Status is the aggregate lifecycle state.
type Status int

const (
	StatusUninitialized Status = iota
	StatusActive
	StatusDeleted
)

// State is the folded recipe state.
type State struct {
	ID          uuid.UUID
	Status      Status
	OwnerID     uuid.UUID
	Title       string
	Ingredients []string
	Favorite    bool
}

// Initial returns the state of an aggregate with no events.
func Initial() State {
	return State{Status: StatusUninitialized}
}

// Apply folds one event into the state. Total and deterministic.
func Apply(s State, env *events.Envelope) State {
	switch env.EventType {
	case EventCreated:
		var p Created
		mustParse(env, &p)
		s.ID = p.RecipeID
		s.Status = StatusActive
		s.OwnerID = p.OwnerID
		s.Title = p.Title
		s.Ingredients = p.Ingredients
	case EventUpdated:
		var p Updated
		mustParse(env, &p)
		s.Title = p.Title
		s.Ingredients = p.Ingredients
	case EventFavorited:
		s.Favorite = true
	case EventUnfavorited:
		s.Favorite = false
	case EventDeleted:
		s.Status = StatusDeleted
		s.Favorite = false
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

func normalizeIngredients(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, ing := range raw {
		ing = strings.ToLower(strings.TrimSpace(ing))
		if ing == "" {
			continue
		}
		out = append(out, ing)
	}
	if len(out) == 0 {
		return nil, domain.NewError(domain.ErrValidation, "at least one ingredient is required")
	}
	return out, nil
}

// Create is the recipe-creation command.
type Create struct {
	RecipeID    uuid.UUID
	OwnerID     uuid.UUID
	Title       string
	Ingredients []string
}

// DecideCreate validates creation against the folded state.
func DecideCreate(s State, cmd Create) ([]events.Payload, error) {
	if s.Status != StatusUninitialized {
		return nil, domain.NewError(domain.ErrInvalidState, "recipe already exists")
	}
	if strings.TrimSpace(cmd.Title) == "" {
		return nil, domain.NewError(domain.ErrValidation, "a recipe title is required")
	}
	ingredients, err := normalizeIngredients(cmd.Ingredients)
	if err != nil {
		return nil, err
	}

	return []events.Payload{Created{
		RecipeID:    cmd.RecipeID,
		OwnerID:     cmd.OwnerID,
		Title:       strings.TrimSpace(cmd.Title),
		Ingredients: ingredients,
	}}, nil
}

// Update replaces the recipe's title and ingredient list.
type Update struct {
	Title       string
	Ingredients []string
}

// DecideUpdate validates an update against the folded state.
func DecideUpdate(s State, cmd Update) ([]events.Payload, error) {
	if s.Status == StatusUninitialized {
		return nil, domain.NewError(domain.ErrInvalidState, "recipe does not exist")
	}
	if s.Status == StatusDeleted {
		return nil, domain.NewError(domain.ErrInvalidState, "recipe has been deleted")
	}
	if strings.TrimSpace(cmd.Title) == "" {
		return nil, domain.NewError(domain.ErrValidation, "a recipe title is required")
	}
	ingredients, err := normalizeIngredients(cmd.Ingredients)
	if err != nil {
		return nil, err
	}

	return []events.Payload{Updated{
		Title:       strings.TrimSpace(cmd.Title),
		Ingredients: ingredients,
	}}, nil
}

// DecideFavorite marks the recipe as a favorite. Favoriting an already-
// favorite recipe is a no-op and emits nothing, which makes the command
// safe for caller-side retry.
func DecideFavorite(s State) ([]events.Payload, error) {
	if s.Status == StatusUninitialized {
		return nil, domain.NewError(domain.ErrInvalidState, "recipe does not exist")
	}
	if s.Status == StatusDeleted {
		return nil, domain.NewError(domain.ErrInvalidState, "cannot favorite a deleted recipe")
	}
	if s.Favorite {
		return nil, nil
	}
	return []events.Payload{Favorited{}}, nil
}

// DecideUnfavorite removes the favorite mark. No-op if not a favorite.
func DecideUnfavorite(s State) ([]events.Payload, error) {
	if s.Status == StatusUninitialized {
		return nil, domain.NewError(domain.ErrInvalidState, "recipe does not exist")
	}
	if s.Status == StatusDeleted {
		return nil, domain.NewError(domain.ErrInvalidState, "recipe has been deleted")
	}
	if !s.Favorite {
		return nil, nil
	}
	return []events.Payload{Unfavorited{}}, nil
}

// DecideDelete soft-deletes the recipe. Deleting twice is rejected.
func DecideDelete(s State) ([]events.Payload, error) {
	if s.Status == StatusUninitialized {
		return nil, domain.NewError(domain.ErrInvalidState, "recipe does not exist")
	}
	if s.Status == StatusDeleted {
		return nil, domain.NewError(domain.ErrInvalidState, "recipe has already been deleted")
	}
	return []events.Payload{Deleted{}}, nil
}
