// Package domain holds the business-rule error taxonomy shared by all
// aggregates. Aggregates are pure state machines: fold events to state,
// decide commands against that state, and reject invalid commands with an
// *Error carrying a user-facing message.
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a business-rule rejection.
type ErrorKind string

const (
	// ErrInvalidState means the command is not valid from the aggregate's
	// current state (e.g., favoriting a deleted recipe, mutating an
	// archived plan).
	ErrInvalidState ErrorKind = "invalid_state"

	// ErrLimitExceeded means a numeric business limit was hit (tier recipe
	// limit, plan length).
	ErrLimitExceeded ErrorKind = "limit_exceeded"

	// ErrInsufficientFavorites means plan generation was attempted with
	// fewer than the required favorite recipes.
	ErrInsufficientFavorites ErrorKind = "insufficient_favorites"

	// ErrValidation means a command carried malformed or missing fields.
	ErrValidation ErrorKind = "validation"

	// ErrUniqueness means a strongly-consistent uniqueness constraint was
	// violated (e.g., duplicate email).
	ErrUniqueness ErrorKind = "uniqueness"
)

// Error is a business-rule rejection. It is always safe to show Message to
// the end user; it is never retried automatically.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError creates a domain error with a user-facing message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var derr *Error
	if !errors.As(err, &derr) {
		return false
	}
	return derr.Kind == kind
}
