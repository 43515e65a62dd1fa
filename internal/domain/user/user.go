// Package user is the account aggregate. Its state is derived solely from
// its own event history; registration-time email uniqueness lives in a
// side table owned by the command layer, not here.
package user

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/mealstack/mealstack/internal/domain"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// Tier is a subscription level. It bounds how many recipes the account may
// own.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// RecipeLimit returns the maximum number of active recipes for the tier.
func (t Tier) RecipeLimit() int {
	switch t {
	case TierPremium:
		return 250
	default:
		return 25
	}
}

// Valid reports whether the tier is a known value.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierPremium
}

// Status is the aggregate lifecycle state.
type Status int

const (
	StatusUninitialized Status = iota
	StatusActive
)

// State is the folded account state.
type State struct {
	ID     uuid.UUID
	Status Status
	Email  string
	Name   string
	Tier   Tier
}

// Initial returns the state of an aggregate with no events.
func Initial() State {
	return State{Status: StatusUninitialized}
}

// Apply folds one event into the state. It is total and deterministic: a
// malformed payload is a fatal bug, not a runtime condition.
func Apply(s State, env *events.Envelope) State {
	switch env.EventType {
	case EventRegistered:
		var p Registered
		mustParse(env, &p)
		s.ID = p.UserID
		s.Status = StatusActive
		s.Email = p.Email
		s.Name = p.Name
		s.Tier = p.Tier
	case EventTierChanged:
		var p TierChanged
		mustParse(env, &p)
		s.Tier = p.Tier
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

// Register is the account-creation command.
type Register struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Tier   Tier
}

// DecideRegister validates the registration command against the folded
// state and emits the resulting events.
func DecideRegister(s State, cmd Register) ([]events.Payload, error) {
	if s.Status != StatusUninitialized {
		return nil, domain.NewError(domain.ErrInvalidState, "account is already registered")
	}

	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.NewError(domain.ErrValidation, "a valid email address is required")
	}
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, domain.NewError(domain.ErrValidation, "a display name is required")
	}

	tier := cmd.Tier
	if tier == "" {
		tier = TierFree
	}
	if !tier.Valid() {
		return nil, domain.NewError(domain.ErrValidation, "unknown tier %q", string(cmd.Tier))
	}

	return []events.Payload{Registered{
		UserID: cmd.UserID,
		Email:  email,
		Name:   strings.TrimSpace(cmd.Name),
		Tier:   tier,
	}}, nil
}

// ChangeTier moves the account to a different subscription level.
type ChangeTier struct {
	Tier Tier
}

// DecideChangeTier validates a tier change. Changing to the current tier is
// a no-op and emits nothing.
func DecideChangeTier(s State, cmd ChangeTier) ([]events.Payload, error) {
	if s.Status != StatusActive {
		return nil, domain.NewError(domain.ErrInvalidState, "account is not registered")
	}
	if !cmd.Tier.Valid() {
		return nil, domain.NewError(domain.ErrValidation, "unknown tier %q", string(cmd.Tier))
	}
	if cmd.Tier == s.Tier {
		return nil, nil
	}

	return []events.Payload{TierChanged{Tier: cmd.Tier}}, nil
}
