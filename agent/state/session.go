package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tanpawarit/bingwa/domain/order"
)

// SessionState is the working memory carried between turns of one conversation.
// It is advisory: the orchestrator renders it into the prompt and the model may
// still ask again. Orders themselves live in the order store.
type SessionState struct {
	SessionID   string                 `json:"session_id"`
	CustomerID  string                 `json:"customer_id,omitempty"`
	Customer    *order.CustomerDetails `json:"customer,omitempty"`
	Location    *order.Location        `json:"location,omitempty"`
	LastOrderID string                 `json:"last_order_id,omitempty"`
	OrderIDs    []string               `json:"order_ids,omitempty"`
	TurnCount   int                    `json:"turn_count"`
	Version     int                    `json:"version"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

const maxRememberedOrders = 10

var ErrIncompleteCustomer = errors.New("customer details are incomplete")

func NewSessionState(sessionID string, now time.Time) *SessionState {
	return &SessionState{
		SessionID: sessionID,
		Version:   1,
		UpdatedAt: now.UTC(),
	}
}

func (s *SessionState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// RememberCustomer stores contact details and, when complete, the matching location.
func (s *SessionState) RememberCustomer(customerID string, details order.CustomerDetails) {
	if customerID != "" {
		s.CustomerID = customerID
	}
	d := details
	s.Customer = &d
	if strings.TrimSpace(details.City) != "" {
		s.Location = &order.Location{City: details.City, Area: details.Area, Details: details.Address}
	}
}

// RememberOrder records the most recent order and keeps a short tail of earlier ones.
func (s *SessionState) RememberOrder(o order.Order) {
	s.LastOrderID = o.ID
	loc := o.Location
	s.Location = &loc
	if s.Customer == nil && strings.TrimSpace(o.Customer.Name) != "" {
		c := o.Customer
		s.Customer = &c
	}

	for _, id := range s.OrderIDs {
		if id == o.ID {
			return
		}
	}
	s.OrderIDs = append(s.OrderIDs, o.ID)
	if len(s.OrderIDs) > maxRememberedOrders {
		s.OrderIDs = s.OrderIDs[len(s.OrderIDs)-maxRememberedOrders:]
	}
}

// ForgetOrder clears LastOrderID if it points at orderID.
func (s *SessionState) ForgetOrder(orderID string) {
	if s.LastOrderID == orderID {
		s.LastOrderID = ""
	}
}

// Summary renders the memory as short plain-text lines for the system prompt.
func (s *SessionState) Summary() string {
	if s == nil {
		return "Nothing remembered yet."
	}

	var lines []string
	if c := s.Customer; c != nil {
		lines = append(lines, fmt.Sprintf("Customer: %s, phone %s", c.Name, c.Phone))
		if c.Address != "" {
			lines = append(lines, fmt.Sprintf("Address: %s", c.Address))
		}
	}
	if s.CustomerID != "" {
		lines = append(lines, fmt.Sprintf("Customer id: %s", s.CustomerID))
	}
	if l := s.Location; l != nil {
		loc := strings.Trim(strings.Join([]string{l.Area, l.City}, ", "), ", ")
		if loc != "" {
			lines = append(lines, fmt.Sprintf("Location: %s", loc))
		}
	}
	if s.LastOrderID != "" {
		lines = append(lines, fmt.Sprintf("Most recent order: %s", s.LastOrderID))
	}
	if len(s.OrderIDs) > 1 {
		lines = append(lines, fmt.Sprintf("Orders this session: %s", strings.Join(s.OrderIDs, ", ")))
	}
	if len(lines) == 0 {
		return "Nothing remembered yet."
	}
	return strings.Join(lines, "\n")
}

func (s *SessionState) Validate() error {
	if s == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	if c := s.Customer; c != nil && (strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Phone) == "") {
		return fmt.Errorf("%w: name and phone are required", ErrIncompleteCustomer)
	}
	return nil
}
