package user

import "github.com/gofrs/uuid/v5"

// Event type discriminators for the user aggregate.
const (
	EventRegistered  = "user.registered"
	EventTierChanged = "user.tier_changed"
)

// EventTypes lists every event type the user aggregate emits.
func EventTypes() []string {
	return []string{EventRegistered, EventTierChanged}
}

// Registered is emitted when an account is created.
type Registered struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Tier   Tier      `json:"tier"`
}

// EventType implements events.Payload.
func (Registered) EventType() string { return EventRegistered }

// TierChanged is emitted when an account moves between subscription levels.
type TierChanged struct {
	Tier Tier `json:"tier"`
}

// EventType implements events.Payload.
func (TierChanged) EventType() string { return EventTierChanged }
