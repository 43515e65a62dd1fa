package recipe

import "github.com/gofrs/uuid/v5"

// Event type discriminators for the recipe aggregate.
const (
	EventCreated     = "recipe.created"
	EventUpdated     = "recipe.updated"
	EventFavorited   = "recipe.favorited"
	EventUnfavorited = "recipe.unfavorited"
	EventDeleted     = "recipe.deleted"
)

// EventTypes lists every event type the recipe aggregate emits.
func EventTypes() []string {
	return []string{EventCreated, EventUpdated, EventFavorited, EventUnfavorited, EventDeleted}
}

// Created is emitted when a recipe is added. It carries everything a
// projection needs so no side lookup back to the aggregate is required.
type Created struct {
	RecipeID    uuid.UUID `json:"recipe_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Title       string    `json:"title"`
	Ingredients []string  `json:"ingredients"`
}

// EventType implements events.Payload.
func (Created) EventType() string { return EventCreated }

// Updated is emitted when a recipe's title or ingredients change.
type Updated struct {
	Title       string   `json:"title"`
	Ingredients []string `json:"ingredients"`
}

// EventType implements events.Payload.
func (Updated) EventType() string { return EventUpdated }

// Favorited is emitted when the owner marks the recipe as a favorite.
type Favorited struct{}

// EventType implements events.Payload.
func (Favorited) EventType() string { return EventFavorited }

// Unfavorited is emitted when the favorite mark is removed.
type Unfavorited struct{}

// EventType implements events.Payload.
func (Unfavorited) EventType() string { return EventUnfavorited }

// Deleted is emitted when a recipe is soft-deleted.
type Deleted struct{}

// EventType implements events.Payload.
func (Deleted) EventType() string { return EventDeleted }
