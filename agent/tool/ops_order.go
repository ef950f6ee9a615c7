package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"

	"github.com/tanpawarit/bingwa/domain/order"
)

const (
	ToolCollectUserDetails = "collectUserDetails"
	ToolCreateOrder        = "createOrder"
	ToolProcessPayment     = "processPayment"
	ToolTrackOrderStatus   = "trackOrderStatus"
	ToolUpdateOrderStatus  = "updateOrderStatus"
	ToolCancelOrder        = "cancelOrder"
	ToolRescheduleOrder    = "rescheduleOrder"

	customerIDPrefix   = "cus_"
	maxSuggestedSlots  = 6
	suggestionLookDays = 3
)

func orderIDParam(desc string) *Param {
	return &Param{Type: schema.String, Desc: desc, Required: true}
}

type detailsInput struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Area    string `json:"area"`
	City    string `json:"city"`
}

func (d detailsInput) toDomain() order.CustomerDetails {
	return order.CustomerDetails{
		Name:    strings.TrimSpace(d.Name),
		Phone:   normalizePhone(d.Phone),
		Address: strings.TrimSpace(d.Address),
		Area:    strings.TrimSpace(d.Area),
		City:    strings.TrimSpace(d.City),
	}
}

type collectDetailsInput struct {
	OrderID string       `json:"orderId,omitempty"`
	Details detailsInput `json:"details"`
}

func (r *Registry) collectUserDetailsOp() Operation {
	return define(ToolCollectUserDetails,
		"Validate and remember the customer's contact details for booking.",
		map[string]*Param{
			"orderId": {Type: schema.String, Desc: "The ID of an existing order the details relate to"},
			"details": {
				Type:     schema.Object,
				Desc:     "Customer details",
				Required: true,
				Fields: map[string]*Param{
					"name":    {Type: schema.String, Desc: "Customer name", Required: true},
					"phone":   {Type: schema.String, Desc: "Customer phone number", Required: true, Format: FormatPhone},
					"address": {Type: schema.String, Desc: "Customer address", Required: true},
					"area":    {Type: schema.String, Desc: "Area or neighbourhood", Required: true},
					"city":    {Type: schema.String, Desc: "City name", Required: true},
				},
			},
		},
		func(ctx context.Context, in collectDetailsInput) (any, error) {
			if in.OrderID != "" {
				if _, err := r.orders.Get(ctx, in.OrderID); err != nil {
					return nil, err
				}
			}
			return CollectDetailsResult{
				Status:     "success",
				CustomerID: customerIDPrefix + r.newID(),
				Details:    in.Details.toDomain(),
				OrderID:    in.OrderID,
			}, nil
		})
}

type orderLocationInput struct {
	Area    string `json:"area"`
	City    string `json:"city"`
	Details string `json:"details,omitempty"`
}

type createOrderInput struct {
	ServiceID       string             `json:"serviceId"`
	VariantID       string             `json:"variantId,omitempty"`
	ProviderID      string             `json:"providerId"`
	Location        orderLocationInput `json:"location"`
	ScheduledTime   string             `json:"scheduledTime"`
	CustomerDetails detailsInput       `json:"customerDetails"`
}

func (r *Registry) createOrderOp() Operation {
	return define(ToolCreateOrder,
		"Create a pending service order. Call only after the customer confirmed service, provider, time and details.",
		map[string]*Param{
			"serviceId":  {Type: schema.String, Desc: "The ID of the service", Required: true},
			"variantId":  {Type: schema.String, Desc: "The ID of the service variant"},
			"providerId": {Type: schema.String, Desc: "The ID of the selected provider", Required: true},
			"location": {
				Type:     schema.Object,
				Desc:     "Where the service will be performed",
				Required: true,
				Fields: map[string]*Param{
					"area":    {Type: schema.String, Desc: "Area or neighbourhood", Required: true},
					"city":    {Type: schema.String, Desc: "City name", Required: true},
					"details": {Type: schema.String, Desc: "Building, floor or directions"},
				},
			},
			"scheduledTime": {Type: schema.String, Desc: "When the service should happen", Required: true, Format: FormatDateTime},
			"customerDetails": {
				Type:     schema.Object,
				Desc:     "Customer contact details",
				Required: true,
				Fields: map[string]*Param{
					"name":    {Type: schema.String, Desc: "Customer name", Required: true},
					"phone":   {Type: schema.String, Desc: "Customer phone number", Required: true, Format: FormatPhone},
					"address": {Type: schema.String, Desc: "Customer address"},
					"area":    {Type: schema.String, Desc: "Area or neighbourhood"},
					"city":    {Type: schema.String, Desc: "City name"},
				},
			},
		},
		func(ctx context.Context, in createOrderInput) (any, error) {
			at, err := parseDateTime(in.ScheduledTime, r.loc)
			if err != nil {
				return nil, invalidArgument("scheduledTime", "must be a date and time in YYYY-MM-DDTHH:MM form")
			}

			o, err := r.orders.Create(ctx, order.CreateInput{
				ServiceID:  in.ServiceID,
				VariantID:  in.VariantID,
				ProviderID: in.ProviderID,
				Location: order.Location{
					City:    strings.TrimSpace(in.Location.City),
					Area:    strings.TrimSpace(in.Location.Area),
					Details: strings.TrimSpace(in.Location.Details),
				},
				ScheduledTime: at,
				Customer:      in.CustomerDetails.toDomain(),
			})
			if err != nil {
				return nil, err
			}
			return r.summarize(ctx, o)
		})
}

// summarize resolves catalog names for an order. Catalog data is immutable so
// lookups after creation cannot disagree with what was priced.
func (r *Registry) summarize(ctx context.Context, o order.Order) (OrderSummary, error) {
	svc, err := r.catalog.GetService(ctx, o.ServiceID)
	if err != nil {
		return OrderSummary{}, err
	}
	provider, err := r.catalog.GetProvider(ctx, o.ProviderID)
	if err != nil {
		return OrderSummary{}, err
	}

	summary := OrderSummary{
		ID:              o.ID,
		Status:          o.Status,
		PaymentRequired: o.Status != order.StatusCancelled,
		Amount:          o.Amount,
		Currency:        o.Currency,
		Service:         OrderServiceView{ID: svc.ID, Name: svc.Name},
		Provider:        OrderProviderView{ID: provider.ID, Name: provider.Name},
		Location:        o.Location,
		ScheduledTime:   o.ScheduledTime.In(r.loc),
		Customer:        o.Customer,
		RebookedFrom:    o.RebookedFrom,
	}
	if o.VariantID != "" {
		v, err := r.catalog.GetVariant(ctx, svc.ID, o.VariantID)
		if err != nil {
			return OrderSummary{}, err
		}
		vv := variantView(v)
		summary.Service.Variant = &vv
	}
	return summary, nil
}

type paymentInput struct {
	OrderID       string `json:"orderId"`
	PaymentMethod string `json:"paymentMethod"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
}

func (r *Registry) processPaymentOp() Operation {
	return define(ToolProcessPayment,
		"Take payment for an order. Paying never changes the order status.",
		map[string]*Param{
			"orderId":       orderIDParam("The ID of the order to pay for"),
			"paymentMethod": {Type: schema.String, Desc: "How the customer pays", Required: true, Enum: []string{"mpesa", "card", "cash"}},
			"phoneNumber":   {Type: schema.String, Desc: "M-Pesa phone number; defaults to the order's customer phone", Format: FormatPhone},
		},
		func(ctx context.Context, in paymentInput) (any, error) {
			phone := ""
			if in.PhoneNumber != "" {
				phone = normalizePhone(in.PhoneNumber)
			}
			p, o, err := r.orders.Pay(ctx, order.PayInput{
				OrderID:     in.OrderID,
				Method:      order.PaymentMethod(in.PaymentMethod),
				PhoneNumber: phone,
			})
			if err != nil {
				return nil, err
			}
			return PaymentResult{
				PaymentID:   p.ID,
				OrderID:     o.ID,
				Status:      p.Status,
				Amount:      p.Amount,
				Currency:    p.Currency,
				OrderStatus: o.Status,
				TransactionDetails: TransactionDetails{
					Method:    p.Method,
					Reference: p.Reference,
					Timestamp: p.Timestamp,
				},
			}, nil
		})
}

type orderRef struct {
	OrderID string `json:"orderId"`
}

func (r *Registry) trackOrderStatusOp() Operation {
	return define(ToolTrackOrderStatus,
		"Report an order's status, history, provider contact and payment state.",
		map[string]*Param{
			"orderId": orderIDParam("The ID of the order to track"),
		},
		func(ctx context.Context, in orderRef) (any, error) {
			t, err := r.orders.Track(ctx, in.OrderID)
			if err != nil {
				return nil, err
			}
			provider, err := r.catalog.GetProvider(ctx, t.Order.ProviderID)
			if err != nil {
				return nil, err
			}

			o := t.Order
			paid := t.PaidAmount()
			payment := PaymentSummary{
				Paid:       paid.GreaterThanOrEqual(o.Amount),
				AmountDue:  decimal.Max(o.Amount.Sub(paid), decimal.Zero),
				AmountPaid: paid,
				Currency:   o.Currency,
			}
			for _, p := range t.Payments {
				if p.Status == order.PaymentCompleted {
					payment.Reference = p.Reference
				}
			}

			return TrackResult{
				OrderID:       o.ID,
				Status:        o.Status,
				History:       o.History,
				ScheduledTime: o.ScheduledTime.In(r.loc),
				ProviderDetails: ProviderContact{
					ID:               provider.ID,
					Name:             provider.Name,
					Phone:            provider.Phone,
					EstimatedArrival: r.estimateArrival(o),
				},
				Payment:      payment,
				Review:       t.Review,
				Cancellation: o.Cancellation,
			}, nil
		})
}

func (r *Registry) estimateArrival(o order.Order) string {
	switch o.Status {
	case order.StatusInProgress:
		return "on site"
	case order.StatusCompleted, order.StatusCancelled:
		return ""
	}
	until := o.ScheduledTime.Sub(r.orders.Now())
	if until <= 0 {
		return "arriving shortly"
	}
	at := o.ScheduledTime.In(r.loc).Format("Mon 2 Jan 15:04")
	if until < time.Hour {
		return fmt.Sprintf("%s (in %d minutes)", at, int(until.Minutes()))
	}
	if until < 48*time.Hour {
		return fmt.Sprintf("%s (in about %d hours)", at, int(until.Round(time.Hour).Hours()))
	}
	return at
}

type updateStatusInput struct {
	OrderID   string `json:"orderId"`
	NewStatus string `json:"newStatus"`
	Note      string `json:"note,omitempty"`
}

func (r *Registry) updateOrderStatusOp() Operation {
	return define(ToolUpdateOrderStatus,
		"Move an order one step forward: pending to confirmed, confirmed to in_progress, in_progress to completed. Use cancelOrder to cancel.",
		map[string]*Param{
			"orderId": orderIDParam("The ID of the order"),
			"newStatus": {
				Type:     schema.String,
				Desc:     "The next status",
				Required: true,
				Enum:     []string{string(order.StatusConfirmed), string(order.StatusInProgress), string(order.StatusCompleted)},
			},
			"note": {Type: schema.String, Desc: "Optional note recorded with the change"},
		},
		func(ctx context.Context, in updateStatusInput) (any, error) {
			updated, err := r.orders.Advance(ctx, in.OrderID, order.Status(in.NewStatus), in.Note)
			if err != nil {
				return nil, err
			}
			previous := updated.History[len(updated.History)-1].From
			return UpdateStatusResult{
				OrderID:        updated.ID,
				PreviousStatus: previous,
				Status:         updated.Status,
				History:        updated.History,
			}, nil
		})
}

type cancelInput struct {
	OrderID        string `json:"orderId"`
	Reason         string `json:"reason"`
	RefundRequired bool   `json:"refundRequired"`
}

func (r *Registry) cancelOrderOp() Operation {
	return define(ToolCancelOrder,
		"Cancel an order that has not been completed.",
		map[string]*Param{
			"orderId":        orderIDParam("The ID of the order to cancel"),
			"reason":         {Type: schema.String, Desc: "Reason for cancellation", Required: true},
			"refundRequired": {Type: schema.Boolean, Desc: "Whether a refund is required", Required: true},
		},
		func(ctx context.Context, in cancelInput) (any, error) {
			cancelled, err := r.orders.Cancel(ctx, in.OrderID, strings.TrimSpace(in.Reason), in.RefundRequired)
			if err != nil {
				return nil, err
			}
			return CancelResult{
				OrderID:        cancelled.ID,
				Status:         cancelled.Status,
				CancellationID: cancelled.Cancellation.ID,
				RefundStatus:   cancelled.Cancellation.RefundStatus,
			}, nil
		})
}

type rescheduleInput struct {
	OrderID     string `json:"orderId"`
	NewDateTime string `json:"newDateTime,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (r *Registry) rescheduleOrderOp() Operation {
	return define(ToolRescheduleOrder,
		"Reschedule a pending or confirmed order. Without newDateTime it returns the current schedule and suggested slots.",
		map[string]*Param{
			"orderId":     orderIDParam("The ID of the order to reschedule"),
			"newDateTime": {Type: schema.String, Desc: "New date and time for the service", Format: FormatDateTime},
			"reason":      {Type: schema.String, Desc: "Reason for rescheduling"},
		},
		func(ctx context.Context, in rescheduleInput) (any, error) {
			if in.NewDateTime == "" {
				return r.rescheduleOptions(ctx, in.OrderID)
			}

			at, err := parseDateTime(in.NewDateTime, r.loc)
			if err != nil {
				return nil, invalidArgument("newDateTime", "must be a date and time in YYYY-MM-DDTHH:MM form")
			}
			updated, err := r.orders.Reschedule(ctx, in.OrderID, at, in.Reason)
			if err != nil {
				return nil, err
			}
			return RescheduleResult{
				Phase:           PhaseApplied,
				OrderID:         updated.ID,
				Status:          updated.Status,
				CurrentSchedule: updated.ScheduledTime.In(r.loc),
				NewSchedule:     &NewSchedule{DateTime: updated.ScheduledTime.In(r.loc), Confirmed: true},
			}, nil
		})
}

func (r *Registry) rescheduleOptions(ctx context.Context, orderID string) (RescheduleResult, error) {
	o, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return RescheduleResult{}, err
	}
	if !o.Status.Reschedulable() {
		return RescheduleResult{}, &order.TransitionError{
			OrderID: o.ID,
			Current: o.Status,
			Action:  "reschedule",
			Reason:  "only pending or confirmed orders can be rescheduled",
		}
	}

	now := r.orders.Now().In(r.loc)
	var suggestions []SlotView
	for d := 0; d < suggestionLookDays && len(suggestions) < maxSuggestedSlots; d++ {
		slots, err := r.upcomingSlots(ctx, now.AddDate(0, 0, d), now)
		if err != nil {
			return RescheduleResult{}, err
		}
		for _, s := range slots {
			if s.StartsAt.Equal(o.ScheduledTime) {
				continue
			}
			suggestions = append(suggestions, s)
			if len(suggestions) == maxSuggestedSlots {
				break
			}
		}
	}

	return RescheduleResult{
		Phase:           PhaseNeedsInput,
		OrderID:         o.ID,
		Status:          o.Status,
		CurrentSchedule: o.ScheduledTime.In(r.loc),
		SuggestedSlots:  suggestions,
	}, nil
}
