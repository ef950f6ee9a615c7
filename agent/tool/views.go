package tool

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tanpawarit/bingwa/domain/catalog"
	"github.com/tanpawarit/bingwa/domain/order"
)

type VariantView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
}

type ServiceView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	Currency    string          `json:"currency"`
	Variants    []VariantView   `json:"variants,omitempty"`
}

type ProviderView struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Rating        float64 `json:"rating"`
	CompletedJobs int     `json:"completedJobs"`
	PhotoRef      string  `json:"photoRef,omitempty"`
}

type ListServicesResult struct {
	Services []ServiceView `json:"services"`
	Filters  ServiceQuery  `json:"filters"`
}

type ResolveVariantResult struct {
	Service            ServiceView   `json:"service"`
	Variants           []VariantView `json:"variants"`
	RecommendedVariant *VariantView  `json:"recommendedVariant"`
}

type SelectProviderResult struct {
	Providers    []ProviderView `json:"providers"`
	AutoAssigned *ProviderView  `json:"autoAssigned"`
}

type SlotView struct {
	Time     string    `json:"time"`
	Label    string    `json:"label"`
	StartsAt time.Time `json:"startsAt"`
}

type AvailableSlotsResult struct {
	Date       string     `json:"date"`
	ServiceID  string     `json:"serviceId"`
	ProviderID string     `json:"providerId,omitempty"`
	Slots      []SlotView `json:"slots"`
}

type CollectDetailsResult struct {
	Status     string                `json:"status"`
	CustomerID string                `json:"customerId"`
	Details    order.CustomerDetails `json:"details"`
	OrderID    string                `json:"orderId,omitempty"`
}

type OrderServiceView struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Variant *VariantView `json:"variant,omitempty"`
}

type OrderProviderView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type OrderSummary struct {
	ID              string                `json:"id"`
	Status          order.Status          `json:"status"`
	PaymentRequired bool                  `json:"paymentRequired"`
	Amount          decimal.Decimal       `json:"amount"`
	Currency        string                `json:"currency"`
	Service         OrderServiceView      `json:"service"`
	Provider        OrderProviderView     `json:"provider"`
	Location        order.Location        `json:"location"`
	ScheduledTime   time.Time             `json:"scheduledTime"`
	Customer        order.CustomerDetails `json:"customer"`
	RebookedFrom    string                `json:"rebookedFrom,omitempty"`
}

type TransactionDetails struct {
	Method    order.PaymentMethod `json:"method"`
	Reference string              `json:"reference"`
	Timestamp time.Time           `json:"timestamp"`
}

type PaymentResult struct {
	PaymentID          string              `json:"paymentId"`
	OrderID            string              `json:"orderId"`
	Status             order.PaymentStatus `json:"status"`
	Amount             decimal.Decimal     `json:"amount"`
	Currency           string              `json:"currency"`
	OrderStatus        order.Status        `json:"orderStatus"`
	TransactionDetails TransactionDetails  `json:"transactionDetails"`
}

type ProviderContact struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	EstimatedArrival string `json:"estimatedArrival"`
}

type PaymentSummary struct {
	Paid       bool            `json:"paid"`
	AmountDue  decimal.Decimal `json:"amountDue"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
	Currency   string          `json:"currency"`
	Reference  string          `json:"reference,omitempty"`
}

type TrackResult struct {
	OrderID         string               `json:"orderId"`
	Status          order.Status         `json:"status"`
	History         []order.StatusChange `json:"history"`
	ScheduledTime   time.Time            `json:"scheduledTime"`
	ProviderDetails ProviderContact      `json:"providerDetails"`
	Payment         PaymentSummary       `json:"payment"`
	Review          *order.Review        `json:"review,omitempty"`
	Cancellation    *order.Cancellation  `json:"cancellation,omitempty"`
}

type UpdateStatusResult struct {
	OrderID        string               `json:"orderId"`
	PreviousStatus order.Status         `json:"previousStatus"`
	Status         order.Status         `json:"status"`
	History        []order.StatusChange `json:"history"`
}

type CancelResult struct {
	OrderID        string             `json:"orderId"`
	Status         order.Status       `json:"status"`
	CancellationID string             `json:"cancellationId"`
	RefundStatus   order.RefundStatus `json:"refundStatus"`
}

const (
	PhaseNeedsInput = "needsInput"
	PhaseApplied    = "applied"
)

type NewSchedule struct {
	DateTime  time.Time `json:"dateTime"`
	Confirmed bool      `json:"confirmed"`
}

type RescheduleResult struct {
	Phase           string       `json:"phase"`
	OrderID         string       `json:"orderId"`
	Status          order.Status `json:"status"`
	CurrentSchedule time.Time    `json:"currentSchedule"`
	SuggestedSlots  []SlotView   `json:"suggestedSlots,omitempty"`
	NewSchedule     *NewSchedule `json:"newSchedule,omitempty"`
}

type ReviewResult struct {
	ReviewID string `json:"reviewId"`
	OrderID  string `json:"orderId"`
	Rating   int    `json:"rating"`
	Status   string `json:"status"`
}

type RebookResult struct {
	NewOrderID string       `json:"newOrderId"`
	Status     string       `json:"status"`
	Order      OrderSummary `json:"order"`
}

type ReviewOrderDetails struct {
	OrderID        string     `json:"orderId"`
	ProviderID     string     `json:"providerId"`
	ServiceID      string     `json:"serviceId"`
	CompletionDate *time.Time `json:"completionDate,omitempty"`
}

type RequestReviewResult struct {
	CanReview    bool               `json:"canReview"`
	Reason       string             `json:"reason,omitempty"`
	OrderDetails ReviewOrderDetails `json:"orderDetails"`
}

func variantView(v catalog.Variant) VariantView {
	return VariantView{
		ID:          v.ID,
		Name:        v.Name,
		Description: v.Description,
		Price:       v.Price,
		Currency:    catalog.Currency,
	}
}

func serviceView(s catalog.Service, variants []catalog.Variant) ServiceView {
	view := ServiceView{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Category:    s.Category,
		BasePrice:   catalog.ResolvePrice(s, nil),
		Currency:    catalog.Currency,
	}
	for _, v := range variants {
		view.Variants = append(view.Variants, variantView(v))
	}
	return view
}

func providerView(p catalog.Provider) ProviderView {
	return ProviderView{
		ID:            p.ID,
		Name:          p.Name,
		Rating:        p.Rating,
		CompletedJobs: p.CompletedJobs,
		PhotoRef:      p.PhotoRef,
	}
}
