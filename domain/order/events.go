package order

import (
	"context"
	"time"
)

const (
	EventCreated          = "order.created"
	EventStatusChanged    = "order.status.changed"
	EventRescheduled      = "order.rescheduled"
	EventCancelled        = "order.cancelled"
	EventPaymentCompleted = "payment.completed"
	EventReviewSubmitted  = "review.submitted"
)

// EventPublisher publishes order domain events for downstream consumers.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event Event) error
}

// Event captures metadata for emitted order domain events.
type Event struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	PreviousStatus Status         `json:"previousStatus,omitempty"`
	CurrentStatus  Status         `json:"currentStatus"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type noopPublisher struct{}

func (noopPublisher) PublishOrderEvent(context.Context, Event) error { return nil }
