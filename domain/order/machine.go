package order

import (
	"fmt"
	"time"
)

// Forward chain; every status has at most one successor.
var orderStateTransitions = map[Status]Status{
	StatusPending:    StatusConfirmed,
	StatusConfirmed:  StatusInProgress,
	StatusInProgress: StatusCompleted,
}

var cancellableStatuses = map[Status]bool{
	StatusPending:    true,
	StatusConfirmed:  true,
	StatusInProgress: true,
}

var reschedulableStatuses = map[Status]bool{
	StatusPending:   true,
	StatusConfirmed: true,
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Next returns the single legal forward successor of s.
func (s Status) Next() (Status, bool) {
	next, ok := orderStateTransitions[s]
	return next, ok
}

// Reschedulable reports whether an order in s may move to a new time.
func (s Status) Reschedulable() bool {
	return reschedulableStatuses[s]
}

func canAdvance(current, target Status) bool {
	next, ok := orderStateTransitions[current]
	return ok && next == target
}

type TransitionKind string

const (
	TransitionStatus     TransitionKind = "status"
	TransitionReschedule TransitionKind = "reschedule"
	TransitionCancel     TransitionKind = "cancel"
)

// Transition is a fully validated change to an order. Stores commit it with
// Apply only if the order is still in ExpectedStatus.
type Transition struct {
	Kind           TransitionKind
	ExpectedStatus Status
	To             Status
	ScheduledTime  time.Time
	Cancellation   *Cancellation
	Reason         string
	At             time.Time
}

// Apply mutates o according to t. History entries are only ever appended.
func (t Transition) Apply(o *Order) error {
	if o.Status != t.ExpectedStatus {
		return fmt.Errorf("%w: order=%s expected status %q but was %q", ErrConflict, o.ID, t.ExpectedStatus, o.Status)
	}

	switch t.Kind {
	case TransitionStatus:
		if !canAdvance(o.Status, t.To) {
			return illegal(*o, "advance", fmt.Sprintf("%s → %s is not a forward step", o.Status, t.To))
		}
		o.History = append(o.History, StatusChange{From: o.Status, To: t.To, At: t.At, Reason: t.Reason})
		o.Status = t.To
	case TransitionCancel:
		if !cancellableStatuses[o.Status] {
			return illegal(*o, "cancel", "order can no longer be cancelled")
		}
		if t.Cancellation == nil {
			return fmt.Errorf("%w: cancellation details are required", ErrInvalidInput)
		}
		c := *t.Cancellation
		o.Cancellation = &c
		o.History = append(o.History, StatusChange{From: o.Status, To: StatusCancelled, At: t.At, Reason: t.Reason})
		o.Status = StatusCancelled
	case TransitionReschedule:
		if !reschedulableStatuses[o.Status] {
			return illegal(*o, "reschedule", "only pending or confirmed orders can be rescheduled")
		}
		o.Reschedules = append(o.Reschedules, ScheduleChange{From: o.ScheduledTime, To: t.ScheduledTime, At: t.At, Reason: t.Reason})
		o.ScheduledTime = t.ScheduledTime
	default:
		return fmt.Errorf("%w: unknown transition kind %q", ErrInvalidInput, t.Kind)
	}

	o.UpdatedAt = t.At
	return nil
}
