package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. missing client, unknown trip kind).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrInvalidTransition is returned when the requested action is not legal
// from the trip's current status. It is never retried automatically.
// Use errors.As with *TransitionError to read the status and action.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrUnauthorized is returned when the acting user is neither the assigned
// driver nor a role allowed to perform the action.
var ErrUnauthorized = errors.New("unauthorized")

// ErrConflict is returned when a compare-and-set lost a race: the stored
// status or version changed between read and commit. Callers should re-read
// the trip and decide again.
var ErrConflict = errors.New("conflicting update")

// ErrPartialBatch is returned when a recurring-series batch could not be
// committed because a sibling left the expected status. Nothing is applied.
var ErrPartialBatch = errors.New("partial batch rejected")

// ErrInvalidDeclineReason is returned for a decline reason outside
// DeclineReasons, before any state is read or written.
var ErrInvalidDeclineReason = errors.New("invalid decline reason")

// ErrScopeMismatch is returned when an event's program and corporate client
// identifiers disagree. Such events are never delivered.
var ErrScopeMismatch = errors.New("scope mismatch")

// TransitionError describes an illegal (status, action) pair.
type TransitionError struct {
	From   Status
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s a trip in status %s", ErrInvalidTransition, e.Action, e.From)
}

// Unwrap lets errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
