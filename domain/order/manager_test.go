package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanpawarit/bingwa/domain/catalog"
)

var eat = time.FixedZone("EAT", 3*60*60)

var testNow = time.Date(2026, time.October, 15, 10, 0, 0, 0, eat)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *recordingPublisher) {
	t.Helper()

	store := NewMemoryStore()
	events := &recordingPublisher{}
	var (
		mu  sync.Mutex
		seq int
	)
	m, err := NewManager(Deps{
		Orders:  store,
		Catalog: catalog.MustDefault(),
		Events:  events,
		Clock:   func() time.Time { return testNow },
		IDGenerator: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("%04d", seq)
		},
	})
	require.NoError(t, err)
	return m, store, events
}

func plumbingInput() CreateInput {
	return CreateInput{
		ServiceID:     "plumbing",
		VariantID:     "plumbing-advanced",
		ProviderID:    "provider1",
		Location:      Location{City: "Nairobi", Area: "Kilimani"},
		ScheduledTime: testNow.Add(24 * time.Hour),
		Customer:      CustomerDetails{Name: "Amina", Phone: "+254712345678"},
	}
}

func mustCreate(t *testing.T, m *Manager) Order {
	t.Helper()
	o, err := m.Create(context.Background(), plumbingInput())
	require.NoError(t, err)
	return o
}

func advanceTo(t *testing.T, m *Manager, id string, targets ...Status) Order {
	t.Helper()
	var o Order
	for _, target := range targets {
		var err error
		o, err = m.Advance(context.Background(), id, target, "")
		require.NoError(t, err)
	}
	return o
}

func TestNewManagerRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewManager(Deps{Catalog: catalog.MustDefault()})
	assert.Error(t, err)
	_, err = NewManager(Deps{Orders: NewMemoryStore()})
	assert.Error(t, err)
}

func TestCreateUsesVariantPriceAndStartsPending(t *testing.T) {
	t.Parallel()

	m, _, events := newTestManager(t)
	o := mustCreate(t, m)

	assert.Equal(t, "ord_0001", o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, o.Amount.Equal(decimal.NewFromInt(5000)), "amount = %s", o.Amount)
	assert.Equal(t, catalog.Currency, o.Currency)
	require.Len(t, o.History, 1)
	assert.Equal(t, Status(""), o.History[0].From)
	assert.Equal(t, StatusPending, o.History[0].To)
	assert.Equal(t, []string{EventCreated}, events.types())
}

func TestCreateFallsBackToBasePrice(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	in := plumbingInput()
	in.VariantID = ""

	o, err := m.Create(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, o.Amount.Equal(decimal.NewFromInt(2000)))
}

func TestCreateRejectsBadReferences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*CreateInput)
		target error
	}{
		{name: "unknown service", mutate: func(in *CreateInput) { in.ServiceID = "gardening" }, target: catalog.ErrNotFound},
		{name: "variant of another service", mutate: func(in *CreateInput) { in.VariantID = "cleaning-deep" }, target: catalog.ErrNotFound},
		{name: "unknown provider", mutate: func(in *CreateInput) { in.ProviderID = "provider9" }, target: catalog.ErrNotFound},
		{name: "provider does not offer service", mutate: func(in *CreateInput) { in.ProviderID = "provider2" }, target: ErrInvalidInput},
		{name: "past schedule", mutate: func(in *CreateInput) { in.ScheduledTime = testNow.Add(-time.Hour) }, target: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, store, _ := newTestManager(t)
			in := plumbingInput()
			tt.mutate(&in)

			_, err := m.Create(context.Background(), in)
			require.ErrorIs(t, err, tt.target)
			assert.Empty(t, store.orders)
		})
	}
}

func TestAdvanceFollowsLinearChain(t *testing.T) {
	t.Parallel()

	m, _, events := newTestManager(t)
	o := mustCreate(t, m)

	o = advanceTo(t, m, o.ID, StatusConfirmed, StatusInProgress, StatusCompleted)
	assert.Equal(t, StatusCompleted, o.Status)

	got := make([]Status, 0, len(o.History))
	for _, h := range o.History {
		got = append(got, h.To)
	}
	assert.Equal(t, []Status{StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted}, got)
	assert.Equal(t, []string{EventCreated, EventStatusChanged, EventStatusChanged, EventStatusChanged}, events.types())
}

func TestAdvanceRejectsIllegalMoves(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   []Status
		target  Status
		current Status
	}{
		{name: "skip", target: StatusInProgress, current: StatusPending},
		{name: "same state", setup: []Status{StatusConfirmed}, target: StatusConfirmed, current: StatusConfirmed},
		{name: "reverse", setup: []Status{StatusConfirmed, StatusInProgress}, target: StatusConfirmed, current: StatusInProgress},
		{name: "cancel via advance", target: StatusCancelled, current: StatusPending},
		{name: "past completed", setup: []Status{StatusConfirmed, StatusInProgress, StatusCompleted}, target: StatusCompleted, current: StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, _, _ := newTestManager(t)
			o := mustCreate(t, m)
			advanceTo(t, m, o.ID, tt.setup...)

			_, err := m.Advance(context.Background(), o.ID, tt.target, "")
			require.ErrorIs(t, err, ErrIllegalTransition)

			var te *TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.current, te.Current)

			after, err := m.Get(context.Background(), o.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.current, after.Status)
			assert.Len(t, after.History, len(tt.setup)+1)
		})
	}
}

func TestAdvanceUnknownOrder(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	_, err := m.Advance(context.Background(), "ord_missing", StatusConfirmed, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelCompletedOrderIsRejected(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	o := mustCreate(t, m)
	advanceTo(t, m, o.ID, StatusConfirmed, StatusInProgress, StatusCompleted)

	_, err := m.Cancel(context.Background(), o.ID, "changed my mind", true)
	require.ErrorIs(t, err, ErrIllegalTransition)

	after, err := m.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, after.Status)
	assert.Nil(t, after.Cancellation)
}

func TestCancelRefundStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		pay    bool
		refund bool
		want   RefundStatus
	}{
		{name: "paid and refund requested", pay: true, refund: true, want: RefundInitiated},
		{name: "unpaid and refund requested", refund: true, want: RefundNotRequired},
		{name: "paid without refund", pay: true, want: RefundNotRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			m, _, _ := newTestManager(t)
			o := mustCreate(t, m)
			if tt.pay {
				_, _, err := m.Pay(ctx, PayInput{OrderID: o.ID, Method: PaymentCash})
				require.NoError(t, err)
			}

			cancelled, err := m.Cancel(ctx, o.ID, "no longer needed", tt.refund)
			require.NoError(t, err)
			assert.Equal(t, StatusCancelled, cancelled.Status)
			require.NotNil(t, cancelled.Cancellation)
			assert.Equal(t, tt.want, cancelled.Cancellation.RefundStatus)
			assert.Contains(t, cancelled.Cancellation.ID, cancellationIDPrefix)

			_, err = m.Cancel(ctx, o.ID, "again", false)
			assert.ErrorIs(t, err, ErrIllegalTransition)
		})
	}
}

func TestRescheduleRules(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	newTime := testNow.Add(48 * time.Hour)

	t.Run("pending keeps status", func(t *testing.T) {
		t.Parallel()
		m, _, events := newTestManager(t)
		o := mustCreate(t, m)

		updated, err := m.Reschedule(ctx, o.ID, newTime, "travelling")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, updated.Status)
		assert.True(t, updated.ScheduledTime.Equal(newTime))
		require.Len(t, updated.Reschedules, 1)
		assert.True(t, updated.Reschedules[0].From.Equal(o.ScheduledTime))
		assert.Contains(t, events.types(), EventRescheduled)
	})

	for _, setup := range [][]Status{
		{StatusConfirmed, StatusInProgress},
		{StatusConfirmed, StatusInProgress, StatusCompleted},
	} {
		t.Run(string(setup[len(setup)-1]), func(t *testing.T) {
			t.Parallel()
			m, _, _ := newTestManager(t)
			o := mustCreate(t, m)
			advanceTo(t, m, o.ID, setup...)

			_, err := m.Reschedule(ctx, o.ID, newTime, "")
			assert.ErrorIs(t, err, ErrIllegalTransition)
		})
	}

	t.Run("past time", func(t *testing.T) {
		t.Parallel()
		m, _, _ := newTestManager(t)
		o := mustCreate(t, m)

		_, err := m.Reschedule(ctx, o.ID, testNow.Add(-time.Hour), "")
		var fe *FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "newDateTime", fe.Field)
	})
}

func TestPayNeverChangesStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _, events := newTestManager(t)
	o := mustCreate(t, m)
	advanceTo(t, m, o.ID, StatusConfirmed)

	p, after, err := m.Pay(ctx, PayInput{OrderID: o.ID, Method: PaymentMpesa})
	require.NoError(t, err)
	assert.Equal(t, PaymentCompleted, p.Status)
	assert.Equal(t, "+254712345678", p.PhoneNumber)
	assert.True(t, p.Amount.Equal(o.Amount))
	assert.Equal(t, paymentReferencePrefix+p.ID[len(paymentIDPrefix):], p.Reference)
	assert.Equal(t, StatusConfirmed, after.Status)

	stored, err := m.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)
	assert.Contains(t, events.types(), EventPaymentCompleted)

	_, _, err = m.Pay(ctx, PayInput{OrderID: o.ID, Method: PaymentCard})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestPayRejectsCancelledOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _, _ := newTestManager(t)
	o := mustCreate(t, m)
	_, err := m.Cancel(ctx, o.ID, "no longer needed", false)
	require.NoError(t, err)

	_, _, err = m.Pay(ctx, PayInput{OrderID: o.ID, Method: PaymentCash})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestReviewGate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _, _ := newTestManager(t)
	o := mustCreate(t, m)

	_, err := m.SubmitReview(ctx, o.ID, 5, "great")
	require.ErrorIs(t, err, ErrIllegalTransition)

	gate, err := m.CanReview(ctx, o.ID, "provider1", "plumbing")
	require.NoError(t, err)
	assert.False(t, gate.CanReview)
	assert.Nil(t, gate.CompletedAt)

	advanceTo(t, m, o.ID, StatusConfirmed, StatusInProgress, StatusCompleted)

	gate, err = m.CanReview(ctx, o.ID, "provider2", "plumbing")
	require.NoError(t, err)
	assert.False(t, gate.CanReview)

	gate, err = m.CanReview(ctx, o.ID, "provider1", "plumbing")
	require.NoError(t, err)
	assert.True(t, gate.CanReview)
	require.NotNil(t, gate.CompletedAt)

	r, err := m.SubmitReview(ctx, o.ID, 5, " great ")
	require.NoError(t, err)
	assert.Equal(t, "great", r.Comment)
	assert.Equal(t, "provider1", r.ProviderID)

	_, err = m.SubmitReview(ctx, o.ID, 4, "")
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = m.SubmitReview(ctx, o.ID, 6, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	tracking, err := m.Track(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, tracking.Review)
	assert.Equal(t, r.ID, tracking.Review.ID)
}

func TestRebookClonesOrderWithFreshPrice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _, _ := newTestManager(t)
	o := mustCreate(t, m)
	advanceTo(t, m, o.ID, StatusConfirmed, StatusInProgress, StatusCompleted)

	rebooked, err := m.Rebook(ctx, o.ID, time.Time{})
	require.NoError(t, err)
	assert.NotEqual(t, o.ID, rebooked.ID)
	assert.Equal(t, o.ID, rebooked.RebookedFrom)
	assert.Equal(t, StatusPending, rebooked.Status)
	assert.Equal(t, o.ServiceID, rebooked.ServiceID)
	assert.Equal(t, o.VariantID, rebooked.VariantID)
	assert.Equal(t, o.Customer, rebooked.Customer)
	assert.True(t, rebooked.Amount.Equal(o.Amount))
	assert.True(t, rebooked.ScheduledTime.After(o.ScheduledTime))
	assert.Equal(t, o.ScheduledTime.Hour(), rebooked.ScheduledTime.Hour())

	explicit := testNow.Add(72 * time.Hour)
	again, err := m.Rebook(ctx, o.ID, explicit)
	require.NoError(t, err)
	assert.True(t, again.ScheduledTime.Equal(explicit))
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()

	past := time.Date(2026, time.September, 1, 14, 30, 0, 0, eat)
	got := nextOccurrence(past, testNow)
	assert.Equal(t, time.Date(2026, time.October, 15, 14, 30, 0, 0, eat), got)

	early := time.Date(2026, time.September, 1, 9, 0, 0, 0, eat)
	got = nextOccurrence(early, testNow)
	assert.Equal(t, time.Date(2026, time.October, 16, 9, 0, 0, 0, eat), got)

	future := time.Date(2026, time.October, 20, 9, 0, 0, 0, eat)
	got = nextOccurrence(future, testNow)
	assert.Equal(t, time.Date(2026, time.October, 21, 9, 0, 0, 0, eat), got)
}

func TestPublishFailureDoesNotRollBack(t *testing.T) {
	t.Parallel()

	m, _, events := newTestManager(t)
	events.err = errors.New("broker down")

	o := mustCreate(t, m)
	updated, err := m.Advance(context.Background(), o.ID, StatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
}

func TestConcurrentAdvanceAppliesOnce(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	o := mustCreate(t, m)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Advance(context.Background(), o.ID, StatusConfirmed, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	after, err := m.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Len(t, after.History, 2)
}

func TestTransitionApplyDetectsConflict(t *testing.T) {
	t.Parallel()

	o := Order{ID: "ord_x", Status: StatusConfirmed}
	err := Transition{Kind: TransitionStatus, ExpectedStatus: StatusPending, To: StatusConfirmed}.Apply(&o)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, Order{ID: "ord_1", Status: StatusPending, History: []StatusChange{{To: StatusPending}}}))

	got, err := store.Get(ctx, "ord_1")
	require.NoError(t, err)
	got.History[0].To = StatusCompleted

	again, err := store.Get(ctx, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.History[0].To)

	assert.ErrorIs(t, store.Create(ctx, Order{ID: "ord_1"}), ErrConflict)
}
