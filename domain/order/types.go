package order

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type Location struct {
	City    string `json:"city"`
	Area    string `json:"area"`
	Details string `json:"details,omitempty"`
}

type CustomerDetails struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address,omitempty"`
	Area    string `json:"area,omitempty"`
	City    string `json:"city,omitempty"`
}

// StatusChange is one append-only entry of an order's status history. The
// creation entry has an empty From.
type StatusChange struct {
	From   Status    `json:"from,omitempty"`
	To     Status    `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

type ScheduleChange struct {
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

type RefundStatus string

const (
	RefundInitiated   RefundStatus = "initiated"
	RefundNotRequired RefundStatus = "not_required"
)

type Cancellation struct {
	ID             string       `json:"id"`
	Reason         string       `json:"reason"`
	RefundRequired bool         `json:"refundRequired"`
	RefundStatus   RefundStatus `json:"refundStatus"`
	At             time.Time    `json:"at"`
}

type Order struct {
	ID            string           `json:"id"`
	ServiceID     string           `json:"serviceId"`
	VariantID     string           `json:"variantId,omitempty"`
	ProviderID    string           `json:"providerId"`
	Location      Location         `json:"location"`
	ScheduledTime time.Time        `json:"scheduledTime"`
	Customer      CustomerDetails  `json:"customer"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	Status        Status           `json:"status"`
	History       []StatusChange   `json:"history"`
	Reschedules   []ScheduleChange `json:"reschedules,omitempty"`
	Cancellation  *Cancellation    `json:"cancellation,omitempty"`
	RebookedFrom  string           `json:"rebookedFrom,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share history slices with a store.
func (o Order) Clone() Order {
	out := o
	out.History = slices.Clone(o.History)
	out.Reschedules = slices.Clone(o.Reschedules)
	if o.Cancellation != nil {
		c := *o.Cancellation
		out.Cancellation = &c
	}
	return out
}

// CompletedAt returns when the order reached completed, if it has.
func (o Order) CompletedAt() (time.Time, bool) {
	for _, h := range o.History {
		if h.To == StatusCompleted {
			return h.At, true
		}
	}
	return time.Time{}, false
}

type PaymentMethod string

const (
	PaymentMpesa PaymentMethod = "mpesa"
	PaymentCard  PaymentMethod = "card"
	PaymentCash  PaymentMethod = "cash"
)

type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type Payment struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	Method      PaymentMethod   `json:"method"`
	Status      PaymentStatus   `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PhoneNumber string          `json:"phoneNumber,omitempty"`
	Reference   string          `json:"reference"`
	Timestamp   time.Time       `json:"timestamp"`
}

type Review struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"orderId"`
	ProviderID string    `json:"providerId"`
	ServiceID  string    `json:"serviceId"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
