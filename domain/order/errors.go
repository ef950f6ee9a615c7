package order

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the order could not be located.
	ErrNotFound = errors.New("order: not found")
	// ErrIllegalTransition indicates the lifecycle rejects the requested change.
	ErrIllegalTransition = errors.New("order: invalid status transition")
	// ErrInvalidInput signals the caller provided data the domain rejects.
	ErrInvalidInput = errors.New("order: invalid input")
	// ErrConflict indicates the stored order changed between validation and commit.
	ErrConflict = errors.New("order: conflict")
	// ErrNoReview is returned by stores when an order has no review yet.
	ErrNoReview = errors.New("order: review not found")
)

// TransitionError carries the status the order was in when a change was
// rejected, so callers can suggest a legal next step.
type TransitionError struct {
	OrderID string
	Current Status
	Action  string
	Reason  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s order=%s in status %s: %s", ErrIllegalTransition, e.Action, e.OrderID, e.Current, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// FieldError pins an invalid input to the argument that caused it.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidInput, e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}

func illegal(o Order, action, reason string) error {
	return &TransitionError{OrderID: o.ID, Current: o.Status, Action: action, Reason: reason}
}

func invalidField(field, message string) error {
	return &FieldError{Field: field, Message: message}
}
