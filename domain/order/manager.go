package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/tanpawarit/bingwa/domain/catalog"
	"github.com/tanpawarit/bingwa/pkg/keylock"
)

const (
	orderIDPrefix        = "ord_"
	paymentIDPrefix      = "pay_"
	reviewIDPrefix       = "rev_"
	cancellationIDPrefix = "can_"

	paymentReferencePrefix = "PAY-"
)

// Deps bundles collaborators required to construct the Manager.
type Deps struct {
	Orders      Store
	Catalog     catalog.Store
	Events      EventPublisher
	Locks       *keylock.Locker
	Clock       func() time.Time
	IDGenerator func() string
}

// Manager owns every order mutation. Each mutation holds the per-order lock,
// validates against a fresh read and commits a single Transition.
type Manager struct {
	orders  Store
	catalog catalog.Store
	events  EventPublisher
	locks   *keylock.Locker
	clock   func() time.Time
	newID   func() string
}

func NewManager(deps Deps) (*Manager, error) {
	if deps.Orders == nil {
		return nil, errors.New("order manager: order store is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order manager: catalog store is required")
	}

	events := deps.Events
	if events == nil {
		events = noopPublisher{}
	}
	locks := deps.Locks
	if locks == nil {
		locks = keylock.New()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	return &Manager{
		orders:  deps.Orders,
		catalog: deps.Catalog,
		events:  events,
		locks:   locks,
		clock:   clock,
		newID:   idGen,
	}, nil
}

// Now exposes the manager clock so callers validate times against the same source.
func (m *Manager) Now() time.Time {
	return m.clock()
}

type CreateInput struct {
	ServiceID     string
	VariantID     string
	ProviderID    string
	Location      Location
	ScheduledTime time.Time
	Customer      CustomerDetails
}

func (m *Manager) Create(ctx context.Context, in CreateInput) (Order, error) {
	o, err := m.build(ctx, in)
	if err != nil {
		return Order{}, err
	}
	if err := m.orders.Create(ctx, o); err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}

	log.Info().Str("component", "order").Str("order_id", o.ID).Str("service_id", o.ServiceID).
		Str("amount", o.Amount.String()).Msg("order created")
	m.publish(ctx, Event{
		Type:          EventCreated,
		OrderID:       o.ID,
		CurrentStatus: o.Status,
		OccurredAt:    o.CreatedAt,
		Metadata:      map[string]any{"amount": o.Amount.String(), "currency": o.Currency},
	})
	return o, nil
}

func (m *Manager) build(ctx context.Context, in CreateInput) (Order, error) {
	if strings.TrimSpace(in.ServiceID) == "" {
		return Order{}, invalidField("serviceId", "is required")
	}
	if strings.TrimSpace(in.ProviderID) == "" {
		return Order{}, invalidField("providerId", "is required")
	}

	now := m.clock()
	if in.ScheduledTime.IsZero() {
		return Order{}, invalidField("scheduledTime", "is required")
	}
	if in.ScheduledTime.Before(now) {
		return Order{}, invalidField("scheduledTime", "must not be in the past")
	}

	svc, err := m.catalog.GetService(ctx, in.ServiceID)
	if err != nil {
		return Order{}, err
	}

	var variant *catalog.Variant
	if in.VariantID != "" {
		v, err := m.catalog.GetVariant(ctx, svc.ID, in.VariantID)
		if err != nil {
			return Order{}, err
		}
		variant = &v
	}

	provider, err := m.catalog.GetProvider(ctx, in.ProviderID)
	if err != nil {
		return Order{}, err
	}
	if !provider.Offers(svc.ID) {
		return Order{}, invalidField("providerId", fmt.Sprintf("provider %s does not offer %s", provider.ID, svc.ID))
	}

	at := now.UTC()
	return Order{
		ID:            orderIDPrefix + m.newID(),
		ServiceID:     svc.ID,
		VariantID:     in.VariantID,
		ProviderID:    provider.ID,
		Location:      in.Location,
		ScheduledTime: in.ScheduledTime,
		Customer:      in.Customer,
		Amount:        catalog.ResolvePrice(svc, variant),
		Currency:      catalog.Currency,
		Status:        StatusPending,
		History:       []StatusChange{{To: StatusPending, At: at}},
		CreatedAt:     at,
		UpdatedAt:     at,
	}, nil
}

func (m *Manager) Get(ctx context.Context, orderID string) (Order, error) {
	return m.orders.Get(ctx, orderID)
}

// Advance moves the order exactly one step forward. Cancellation has its own path.
func (m *Manager) Advance(ctx context.Context, orderID string, target Status, note string) (Order, error) {
	if !target.Valid() {
		return Order{}, invalidField("newStatus", fmt.Sprintf("unknown status %q", target))
	}

	unlock, err := m.locks.Lock(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	defer unlock()

	current, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if target == StatusCancelled {
		return Order{}, illegal(current, "advance", "use cancel to cancel an order")
	}
	if !canAdvance(current.Status, target) {
		reason := fmt.Sprintf("cannot move from %s to %s", current.Status, target)
		if next, ok := current.Status.Next(); ok {
			reason += fmt.Sprintf("; next allowed status is %s", next)
		}
		return Order{}, illegal(current, "advance", reason)
	}

	updated, err := m.orders.ApplyTransition(ctx, orderID, Transition{
		Kind:           TransitionStatus,
		ExpectedStatus: current.Status,
		To:             target,
		Reason:         note,
		At:             m.clock().UTC(),
	})
	if err != nil {
		return Order{}, err
	}

	log.Info().Str("component", "order").Str("order_id", orderID).
		Str("from", string(current.Status)).Str("to", string(target)).Msg("order status changed")
	m.publish(ctx, Event{
		Type:           EventStatusChanged,
		OrderID:        orderID,
		PreviousStatus: current.Status,
		CurrentStatus:  updated.Status,
		OccurredAt:     updated.UpdatedAt,
		Metadata:       map[string]any{"note": note},
	})
	return updated, nil
}

func (m *Manager) Cancel(ctx context.Context, orderID, reason string, refundRequired bool) (Order, error) {
	if strings.TrimSpace(reason) == "" {
		return Order{}, invalidField("reason", "is required")
	}

	unlock, err := m.locks.Lock(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	defer unlock()

	current, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !cancellableStatuses[current.Status] {
		return Order{}, illegal(current, "cancel", "completed or cancelled orders cannot be cancelled")
	}

	refund := RefundNotRequired
	if refundRequired {
		paid, err := m.hasCompletedPayment(ctx, orderID)
		if err != nil {
			return Order{}, err
		}
		if paid {
			refund = RefundInitiated
		}
	}

	at := m.clock().UTC()
	updated, err := m.orders.ApplyTransition(ctx, orderID, Transition{
		Kind:           TransitionCancel,
		ExpectedStatus: current.Status,
		To:             StatusCancelled,
		Reason:         reason,
		At:             at,
		Cancellation: &Cancellation{
			ID:             cancellationIDPrefix + m.newID(),
			Reason:         reason,
			RefundRequired: refundRequired,
			RefundStatus:   refund,
			At:             at,
		},
	})
	if err != nil {
		return Order{}, err
	}

	log.Info().Str("component", "order").Str("order_id", orderID).
		Str("from", string(current.Status)).Str("refund_status", string(refund)).Msg("order cancelled")
	m.publish(ctx, Event{
		Type:           EventCancelled,
		OrderID:        orderID,
		PreviousStatus: current.Status,
		CurrentStatus:  updated.Status,
		OccurredAt:     at,
		Metadata:       map[string]any{"reason": reason, "refundStatus": string(refund)},
	})
	return updated, nil
}

// Reschedule moves the visit time. Status is untouched.
func (m *Manager) Reschedule(ctx context.Context, orderID string, newTime time.Time, reason string) (Order, error) {
	if newTime.IsZero() {
		return Order{}, invalidField("newDateTime", "is required")
	}

	unlock, err := m.locks.Lock(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	defer unlock()

	current, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !reschedulableStatuses[current.Status] {
		return Order{}, illegal(current, "reschedule", "only pending or confirmed orders can be rescheduled")
	}
	if newTime.Before(m.clock()) {
		return Order{}, invalidField("newDateTime", "must not be in the past")
	}

	updated, err := m.orders.ApplyTransition(ctx, orderID, Transition{
		Kind:           TransitionReschedule,
		ExpectedStatus: current.Status,
		ScheduledTime:  newTime,
		Reason:         reason,
		At:             m.clock().UTC(),
	})
	if err != nil {
		return Order{}, err
	}

	log.Info().Str("component", "order").Str("order_id", orderID).
		Time("from", current.ScheduledTime).Time("to", newTime).Msg("order rescheduled")
	m.publish(ctx, Event{
		Type:          EventRescheduled,
		OrderID:       orderID,
		CurrentStatus: updated.Status,
		OccurredAt:    updated.UpdatedAt,
		Metadata: map[string]any{
			"from":   current.ScheduledTime.Format(time.RFC3339),
			"to":     newTime.Format(time.RFC3339),
			"reason": reason,
		},
	})
	return updated, nil
}

type PayInput struct {
	OrderID     string
	Method      PaymentMethod
	PhoneNumber string
}

// Pay records a settled payment. The order status never changes here.
func (m *Manager) Pay(ctx context.Context, in PayInput) (Payment, Order, error) {
	switch in.Method {
	case PaymentMpesa, PaymentCard, PaymentCash:
	default:
		return Payment{}, Order{}, invalidField("paymentMethod", fmt.Sprintf("unsupported method %q", in.Method))
	}

	unlock, err := m.locks.Lock(ctx, in.OrderID)
	if err != nil {
		return Payment{}, Order{}, err
	}
	defer unlock()

	current, err := m.orders.Get(ctx, in.OrderID)
	if err != nil {
		return Payment{}, Order{}, err
	}
	if current.Status == StatusCancelled {
		return Payment{}, Order{}, illegal(current, "pay", "cancelled orders cannot be paid")
	}
	paid, err := m.hasCompletedPayment(ctx, current.ID)
	if err != nil {
		return Payment{}, Order{}, err
	}
	if paid {
		return Payment{}, Order{}, illegal(current, "pay", "order is already paid")
	}

	phone := strings.TrimSpace(in.PhoneNumber)
	if in.Method == PaymentMpesa && phone == "" {
		phone = current.Customer.Phone
	}
	if in.Method == PaymentMpesa && phone == "" {
		return Payment{}, Order{}, invalidField("phoneNumber", "is required for mpesa payments")
	}

	suffix := m.newID()
	p := Payment{
		ID:          paymentIDPrefix + suffix,
		OrderID:     current.ID,
		Method:      in.Method,
		Status:      PaymentCompleted,
		Amount:      current.Amount,
		Currency:    current.Currency,
		PhoneNumber: phone,
		Reference:   paymentReferencePrefix + suffix,
		Timestamp:   m.clock().UTC(),
	}
	if in.Method != PaymentMpesa {
		p.PhoneNumber = ""
	}
	if err := m.orders.AddPayment(ctx, p); err != nil {
		return Payment{}, Order{}, fmt.Errorf("record payment: %w", err)
	}

	log.Info().Str("component", "order").Str("order_id", current.ID).Str("payment_id", p.ID).
		Str("method", string(p.Method)).Msg("payment completed")
	m.publish(ctx, Event{
		Type:          EventPaymentCompleted,
		OrderID:       current.ID,
		CurrentStatus: current.Status,
		OccurredAt:    p.Timestamp,
		Metadata: map[string]any{
			"paymentId": p.ID,
			"method":    string(p.Method),
			"amount":    p.Amount.String(),
			"reference": p.Reference,
		},
	})
	return p, current, nil
}

func (m *Manager) SubmitReview(ctx context.Context, orderID string, rating int, comment string) (Review, error) {
	if rating < 1 || rating > 5 {
		return Review{}, invalidField("rating", "must be between 1 and 5")
	}

	unlock, err := m.locks.Lock(ctx, orderID)
	if err != nil {
		return Review{}, err
	}
	defer unlock()

	current, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return Review{}, err
	}
	if current.Status != StatusCompleted {
		return Review{}, illegal(current, "review", "only completed orders can be reviewed")
	}
	if _, err := m.orders.GetReview(ctx, orderID); err == nil {
		return Review{}, illegal(current, "review", "order has already been reviewed")
	} else if !errors.Is(err, ErrNoReview) {
		return Review{}, err
	}

	r := Review{
		ID:         reviewIDPrefix + m.newID(),
		OrderID:    current.ID,
		ProviderID: current.ProviderID,
		ServiceID:  current.ServiceID,
		Rating:     rating,
		Comment:    strings.TrimSpace(comment),
		CreatedAt:  m.clock().UTC(),
	}
	if err := m.orders.AddReview(ctx, r); err != nil {
		return Review{}, fmt.Errorf("record review: %w", err)
	}

	m.publish(ctx, Event{
		Type:          EventReviewSubmitted,
		OrderID:       current.ID,
		CurrentStatus: current.Status,
		OccurredAt:    r.CreatedAt,
		Metadata:      map[string]any{"reviewId": r.ID, "rating": rating, "providerId": r.ProviderID},
	})
	return r, nil
}

// Rebook creates a fresh pending order from a previous one. The price is
// resolved again from the catalog. A zero scheduledTime picks the original
// time of day on the first day after both now and the original visit.
func (m *Manager) Rebook(ctx context.Context, orderID string, scheduledTime time.Time) (Order, error) {
	original, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	if scheduledTime.IsZero() {
		scheduledTime = nextOccurrence(original.ScheduledTime, m.clock())
	}

	o, err := m.build(ctx, CreateInput{
		ServiceID:     original.ServiceID,
		VariantID:     original.VariantID,
		ProviderID:    original.ProviderID,
		Location:      original.Location,
		ScheduledTime: scheduledTime,
		Customer:      original.Customer,
	})
	if err != nil {
		return Order{}, err
	}
	o.RebookedFrom = original.ID

	if err := m.orders.Create(ctx, o); err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}

	log.Info().Str("component", "order").Str("order_id", o.ID).Str("rebooked_from", original.ID).Msg("order rebooked")
	m.publish(ctx, Event{
		Type:          EventCreated,
		OrderID:       o.ID,
		CurrentStatus: o.Status,
		OccurredAt:    o.CreatedAt,
		Metadata: map[string]any{
			"amount":       o.Amount.String(),
			"currency":     o.Currency,
			"rebookedFrom": original.ID,
		},
	})
	return o, nil
}

func nextOccurrence(original, now time.Time) time.Time {
	loc := original.Location()
	base := now.In(loc)
	if original.After(base) {
		base = original
	}
	candidate := time.Date(base.Year(), base.Month(), base.Day(), original.Hour(), original.Minute(), 0, 0, loc)
	if !candidate.After(base) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

type Tracking struct {
	Order    Order
	Payments []Payment
	Review   *Review
}

// PaidAmount sums the completed payments.
func (t Tracking) PaidAmount() decimal.Decimal {
	total := decimal.Zero
	for _, p := range t.Payments {
		if p.Status == PaymentCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total
}

func (m *Manager) Track(ctx context.Context, orderID string) (Tracking, error) {
	o, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return Tracking{}, err
	}
	payments, err := m.orders.ListPayments(ctx, orderID)
	if err != nil {
		return Tracking{}, err
	}

	t := Tracking{Order: o, Payments: payments}
	r, err := m.orders.GetReview(ctx, orderID)
	switch {
	case err == nil:
		t.Review = &r
	case errors.Is(err, ErrNoReview):
	default:
		return Tracking{}, err
	}
	return t, nil
}

type ReviewGate struct {
	CanReview   bool
	Reason      string
	Order       Order
	CompletedAt *time.Time
}

// CanReview reports whether a review may be submitted for the order. A
// mismatching provider or service is reported as a reason, not an error.
func (m *Manager) CanReview(ctx context.Context, orderID, providerID, serviceID string) (ReviewGate, error) {
	o, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return ReviewGate{}, err
	}

	gate := ReviewGate{Order: o}
	if at, ok := o.CompletedAt(); ok {
		gate.CompletedAt = &at
	}

	switch {
	case providerID != "" && providerID != o.ProviderID:
		gate.Reason = "provider does not match the order"
	case serviceID != "" && serviceID != o.ServiceID:
		gate.Reason = "service does not match the order"
	case o.Status != StatusCompleted:
		gate.Reason = fmt.Sprintf("order is %s; reviews open once it is completed", o.Status)
	default:
		if _, err := m.orders.GetReview(ctx, orderID); err == nil {
			gate.Reason = "order has already been reviewed"
		} else if !errors.Is(err, ErrNoReview) {
			return ReviewGate{}, err
		} else {
			gate.CanReview = true
		}
	}
	return gate, nil
}

func (m *Manager) hasCompletedPayment(ctx context.Context, orderID string) (bool, error) {
	payments, err := m.orders.ListPayments(ctx, orderID)
	if err != nil {
		return false, err
	}
	for _, p := range payments {
		if p.Status == PaymentCompleted {
			return true, nil
		}
	}
	return false, nil
}

// publish is best effort; a failed publish never rolls back a committed change.
func (m *Manager) publish(ctx context.Context, evt Event) {
	if err := m.events.PublishOrderEvent(ctx, evt); err != nil {
		log.Warn().Err(err).Str("component", "order").Str("event", evt.Type).
			Str("order_id", evt.OrderID).Msg("publish order event failed")
	}
}
