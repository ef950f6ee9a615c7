package tool

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

const (
	ToolSubmitReview      = "submitReview"
	ToolRebookService     = "rebookService"
	ToolHandlePostService = "handlePostService"
	ToolRequestReview     = "requestReview"

	actionReview = "review"
	actionRebook = "rebook"
)

func ratingParam(required bool) *Param {
	return &Param{Type: schema.Integer, Desc: "Rating from 1 to 5", Required: required, Min: bound(1), Max: bound(5)}
}

type reviewInput struct {
	OrderID string `json:"orderId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

func (r *Registry) submitReviewOp() Operation {
	return define(ToolSubmitReview,
		"Submit the customer's review of a completed order. One review per order.",
		map[string]*Param{
			"orderId": orderIDParam("The ID of the completed order"),
			"rating":  ratingParam(true),
			"comment": {Type: schema.String, Desc: "Review comment"},
		},
		func(ctx context.Context, in reviewInput) (any, error) {
			return r.submitReview(ctx, in)
		})
}

func (r *Registry) submitReview(ctx context.Context, in reviewInput) (ReviewResult, error) {
	rev, err := r.orders.SubmitReview(ctx, in.OrderID, in.Rating, in.Comment)
	if err != nil {
		return ReviewResult{}, err
	}
	return ReviewResult{ReviewID: rev.ID, OrderID: rev.OrderID, Rating: rev.Rating, Status: "submitted"}, nil
}

type rebookInput struct {
	OrderID       string `json:"orderId"`
	ScheduledTime string `json:"scheduledTime,omitempty"`
}

func (r *Registry) rebookServiceOp() Operation {
	return define(ToolRebookService,
		"Book the same service, provider and address again as a new pending order.",
		map[string]*Param{
			"orderId":       orderIDParam("The ID of the order to repeat"),
			"scheduledTime": {Type: schema.String, Desc: "When the new visit should happen; defaults to the same time of day on the next free day", Format: FormatDateTime},
		},
		func(ctx context.Context, in rebookInput) (any, error) {
			return r.rebook(ctx, in)
		})
}

func (r *Registry) rebook(ctx context.Context, in rebookInput) (RebookResult, error) {
	var at time.Time
	if in.ScheduledTime != "" {
		parsed, err := parseDateTime(in.ScheduledTime, r.loc)
		if err != nil {
			return RebookResult{}, invalidArgument("scheduledTime", "must be a date and time in YYYY-MM-DDTHH:MM form")
		}
		at = parsed
	}

	o, err := r.orders.Rebook(ctx, in.OrderID, at)
	if err != nil {
		return RebookResult{}, err
	}
	summary, err := r.summarize(ctx, o)
	if err != nil {
		return RebookResult{}, err
	}
	return RebookResult{NewOrderID: o.ID, Status: "created", Order: summary}, nil
}

type reviewDetailsInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

type postServiceInput struct {
	OrderID       string              `json:"orderId"`
	Action        string              `json:"action"`
	ReviewDetails *reviewDetailsInput `json:"reviewDetails,omitempty"`
	ScheduledTime string              `json:"scheduledTime,omitempty"`
}

func (r *Registry) handlePostServiceOp() Operation {
	return define(ToolHandlePostService,
		"After a visit, either review the order or rebook the same service.",
		map[string]*Param{
			"orderId": orderIDParam("The ID of the completed order"),
			"action":  {Type: schema.String, Desc: "The action to perform", Required: true, Enum: []string{actionReview, actionRebook}},
			"reviewDetails": {
				Type: schema.Object,
				Desc: "Review details, required when action is review",
				Fields: map[string]*Param{
					"rating":  ratingParam(true),
					"comment": {Type: schema.String, Desc: "Review comment"},
				},
			},
			"scheduledTime": {Type: schema.String, Desc: "When a rebooked visit should happen", Format: FormatDateTime},
		},
		func(ctx context.Context, in postServiceInput) (any, error) {
			if in.Action == actionRebook {
				return r.rebook(ctx, rebookInput{OrderID: in.OrderID, ScheduledTime: in.ScheduledTime})
			}
			if in.ReviewDetails == nil {
				return nil, invalidArgument("reviewDetails", "is required when action is review")
			}
			return r.submitReview(ctx, reviewInput{
				OrderID: in.OrderID,
				Rating:  in.ReviewDetails.Rating,
				Comment: in.ReviewDetails.Comment,
			})
		})
}

type requestReviewInput struct {
	OrderID    string `json:"orderId"`
	ProviderID string `json:"providerId"`
	ServiceID  string `json:"serviceId"`
}

func (r *Registry) requestReviewOp() Operation {
	return define(ToolRequestReview,
		"Check whether a review can be left for an order before asking the customer for one.",
		map[string]*Param{
			"orderId":    orderIDParam("The ID of the completed order"),
			"providerId": {Type: schema.String, Desc: "The ID of the service provider", Required: true},
			"serviceId":  {Type: schema.String, Desc: "The ID of the service provided", Required: true},
		},
		func(ctx context.Context, in requestReviewInput) (any, error) {
			gate, err := r.orders.CanReview(ctx, in.OrderID, in.ProviderID, in.ServiceID)
			if err != nil {
				return nil, err
			}
			return RequestReviewResult{
				CanReview: gate.CanReview,
				Reason:    gate.Reason,
				OrderDetails: ReviewOrderDetails{
					OrderID:        gate.Order.ID,
					ProviderID:     gate.Order.ProviderID,
					ServiceID:      gate.Order.ServiceID,
					CompletionDate: gate.CompletedAt,
				},
			}, nil
		})
}
