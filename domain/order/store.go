package order

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Store is the persistence contract used by the Manager.
type Store interface {
	Get(ctx context.Context, orderID string) (Order, error)
	Create(ctx context.Context, o Order) error
	ApplyTransition(ctx context.Context, orderID string, t Transition) (Order, error)

	AddPayment(ctx context.Context, p Payment) error
	ListPayments(ctx context.Context, orderID string) ([]Payment, error)

	AddReview(ctx context.Context, r Review) error
	GetReview(ctx context.Context, orderID string) (Review, error)
}

// MemoryStore keeps orders in process memory. Values are cloned on the way in
// and out so callers cannot mutate stored history.
type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[string]Order
	payments map[string][]Payment
	reviews  map[string]Review
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]Order),
		payments: make(map[string][]Payment),
		reviews:  make(map[string]Review),
	}
}

func (s *MemoryStore) Get(_ context.Context, orderID string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[strings.TrimSpace(orderID)]
	if !ok {
		return Order{}, fmt.Errorf("%w: id=%s", ErrNotFound, orderID)
	}
	return o.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, o Order) error {
	if strings.TrimSpace(o.ID) == "" {
		return fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return fmt.Errorf("%w: order id=%s already exists", ErrConflict, o.ID)
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) ApplyTransition(_ context.Context, orderID string, t Transition) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("%w: id=%s", ErrNotFound, orderID)
	}

	next := current.Clone()
	if err := t.Apply(&next); err != nil {
		return Order{}, err
	}
	s.orders[orderID] = next
	return next.Clone(), nil
}

func (s *MemoryStore) AddPayment(_ context.Context, p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[p.OrderID]; !ok {
		return fmt.Errorf("%w: id=%s", ErrNotFound, p.OrderID)
	}
	if p.Status == PaymentCompleted {
		for _, existing := range s.payments[p.OrderID] {
			if existing.Status == PaymentCompleted {
				return fmt.Errorf("%w: order=%s already has a completed payment", ErrConflict, p.OrderID)
			}
		}
	}
	s.payments[p.OrderID] = append(s.payments[p.OrderID], p)
	return nil
}

func (s *MemoryStore) ListPayments(_ context.Context, orderID string) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.payments[orderID]), nil
}

func (s *MemoryStore) AddReview(_ context.Context, r Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reviews[r.OrderID]; exists {
		return fmt.Errorf("%w: order=%s already reviewed", ErrConflict, r.OrderID)
	}
	s.reviews[r.OrderID] = r
	return nil
}

func (s *MemoryStore) GetReview(_ context.Context, orderID string) (Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reviews[orderID]
	if !ok {
		return Review{}, ErrNoReview
	}
	return r, nil
}
