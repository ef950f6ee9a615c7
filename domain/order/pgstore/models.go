package pgstore

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/tanpawarit/bingwa/domain/order"
)

type orderModel struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID            string                 `bun:"id,pk"`
	ServiceID     string                 `bun:"service_id,notnull"`
	VariantID     string                 `bun:"variant_id,nullzero"`
	ProviderID    string                 `bun:"provider_id,notnull"`
	Location      order.Location         `bun:"location,type:jsonb"`
	ScheduledTime time.Time              `bun:"scheduled_time,notnull"`
	Customer      order.CustomerDetails  `bun:"customer,type:jsonb"`
	Amount        decimal.Decimal        `bun:"amount,type:numeric(12,2),notnull"`
	Currency      string                 `bun:"currency,notnull"`
	Status        string                 `bun:"status,notnull"`
	History       []order.StatusChange   `bun:"history,type:jsonb"`
	Reschedules   []order.ScheduleChange `bun:"reschedules,type:jsonb"`
	Cancellation  *order.Cancellation    `bun:"cancellation,type:jsonb"`
	RebookedFrom  string                 `bun:"rebooked_from,nullzero"`
	CreatedAt     time.Time              `bun:"created_at,notnull"`
	UpdatedAt     time.Time              `bun:"updated_at,notnull"`
}

func newOrderModel(o order.Order) *orderModel {
	return &orderModel{
		ID:            o.ID,
		ServiceID:     o.ServiceID,
		VariantID:     o.VariantID,
		ProviderID:    o.ProviderID,
		Location:      o.Location,
		ScheduledTime: o.ScheduledTime,
		Customer:      o.Customer,
		Amount:        o.Amount,
		Currency:      o.Currency,
		Status:        string(o.Status),
		History:       o.History,
		Reschedules:   o.Reschedules,
		Cancellation:  o.Cancellation,
		RebookedFrom:  o.RebookedFrom,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func (m *orderModel) toDomain() order.Order {
	return order.Order{
		ID:            m.ID,
		ServiceID:     m.ServiceID,
		VariantID:     m.VariantID,
		ProviderID:    m.ProviderID,
		Location:      m.Location,
		ScheduledTime: m.ScheduledTime,
		Customer:      m.Customer,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Status:        order.Status(m.Status),
		History:       m.History,
		Reschedules:   m.Reschedules,
		Cancellation:  m.Cancellation,
		RebookedFrom:  m.RebookedFrom,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

type paymentModel struct {
	bun.BaseModel `bun:"table:order_payments,alias:p"`

	ID          string          `bun:"id,pk"`
	OrderID     string          `bun:"order_id,notnull"`
	Method      string          `bun:"method,notnull"`
	Status      string          `bun:"status,notnull"`
	Amount      decimal.Decimal `bun:"amount,type:numeric(12,2),notnull"`
	Currency    string          `bun:"currency,notnull"`
	PhoneNumber string          `bun:"phone_number,nullzero"`
	Reference   string          `bun:"reference,notnull"`
	Timestamp   time.Time       `bun:"paid_at,notnull"`
}

func newPaymentModel(p order.Payment) *paymentModel {
	return &paymentModel{
		ID:          p.ID,
		OrderID:     p.OrderID,
		Method:      string(p.Method),
		Status:      string(p.Status),
		Amount:      p.Amount,
		Currency:    p.Currency,
		PhoneNumber: p.PhoneNumber,
		Reference:   p.Reference,
		Timestamp:   p.Timestamp,
	}
}

func (m paymentModel) toDomain() order.Payment {
	return order.Payment{
		ID:          m.ID,
		OrderID:     m.OrderID,
		Method:      order.PaymentMethod(m.Method),
		Status:      order.PaymentStatus(m.Status),
		Amount:      m.Amount,
		Currency:    m.Currency,
		PhoneNumber: m.PhoneNumber,
		Reference:   m.Reference,
		Timestamp:   m.Timestamp,
	}
}

type reviewModel struct {
	bun.BaseModel `bun:"table:order_reviews,alias:r"`

	ID         string    `bun:"id,pk"`
	OrderID    string    `bun:"order_id,notnull,unique"`
	ProviderID string    `bun:"provider_id,notnull"`
	ServiceID  string    `bun:"service_id,notnull"`
	Rating     int       `bun:"rating,notnull"`
	Comment    string    `bun:"comment,nullzero"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func newReviewModel(r order.Review) *reviewModel {
	return &reviewModel{
		ID:         r.ID,
		OrderID:    r.OrderID,
		ProviderID: r.ProviderID,
		ServiceID:  r.ServiceID,
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
	}
}

func (m *reviewModel) toDomain() order.Review {
	return order.Review{
		ID:         m.ID,
		OrderID:    m.OrderID,
		ProviderID: m.ProviderID,
		ServiceID:  m.ServiceID,
		Rating:     m.Rating,
		Comment:    m.Comment,
		CreatedAt:  m.CreatedAt,
	}
}
