package admission

import (
	"errors"
	"fmt"

	"exam-reservation-backend/internal/model"
)

// ErrNoBookableSlot is returned when a requested range intersects no slot.
var ErrNoBookableSlot = errors.New("no bookable slot covers the requested time")

// ValidationError reports the first input rule a request violated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthorizationError is returned when the caller may not act on a resource.
type AuthorizationError struct {
	UserID int64
	Action string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %d is not allowed to %s", e.UserID, e.Action)
}

// NotFoundError is returned when a referenced reservation does not exist.
type NotFoundError struct {
	ReservationID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("reservation %d not found", e.ReservationID)
}

// CapacityExceededError names the first slot that cannot absorb the request.
type CapacityExceededError struct {
	SlotID    int64
	Remaining int
	Requested int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("slot %d has %d seats left, %d requested", e.SlotID, e.Remaining, e.Requested)
}

// StateError is returned when an operation is not allowed from the
// reservation's current status, or its exam has already started.
type StateError struct {
	ReservationID int64
	Status        model.ReservationStatus
	Op            model.ReservationOp
	Reason        string
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s reservation %d: %s", e.Op, e.ReservationID, e.Reason)
	}
	return fmt.Sprintf("cannot %s reservation %d in status %s", e.Op, e.ReservationID, e.Status)
}

// ConflictError is returned when concurrent transactions kept winning the
// race for the same slots until the retry budget ran out.
type ConflictError struct {
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("gave up after %d conflicting attempts: %v", e.Attempts, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// AbortedError is returned when the caller's context ended before the
// operation committed. Nothing was written.
type AbortedError struct {
	Err error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("operation aborted: %v", e.Err)
}

func (e *AbortedError) Unwrap() error {
	return e.Err
}
