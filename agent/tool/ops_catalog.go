package tool

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/bingwa/domain/catalog"
)

const (
	ToolListServices      = "listServices"
	ToolResolveVariant    = "resolveVariant"
	ToolSelectProvider    = "selectProvider"
	ToolGetAvailableSlots = "getAvailableSlots"
)

type LocationQuery struct {
	City string `json:"city,omitempty"`
	Area string `json:"area,omitempty"`
}

type ServiceQuery struct {
	Category string         `json:"category,omitempty"`
	Location *LocationQuery `json:"location,omitempty"`
}

func optionalLocationParam(desc string, required bool) *Param {
	return &Param{
		Type:     schema.Object,
		Desc:     desc,
		Required: required,
		Fields: map[string]*Param{
			"city": {Type: schema.String, Desc: "City name, e.g. Nairobi"},
			"area": {Type: schema.String, Desc: "Area or neighbourhood, e.g. Kilimani"},
		},
	}
}

func (r *Registry) listServicesOp() Operation {
	return define(ToolListServices,
		"List the home services on offer with their variants and prices in KES.",
		map[string]*Param{
			"category": {Type: schema.String, Desc: "Optional category such as plumbing, cleaning or painting"},
			"location": optionalLocationParam("Optional location of the customer", false),
		},
		func(ctx context.Context, in ServiceQuery) (any, error) {
			services, err := r.catalog.ListServices(ctx, catalog.ServiceFilter{Category: in.Category})
			if err != nil {
				return nil, err
			}

			out := ListServicesResult{Services: make([]ServiceView, 0, len(services)), Filters: in}
			for _, svc := range services {
				variants, err := r.catalog.ListVariants(ctx, svc.ID)
				if err != nil {
					return nil, err
				}
				out.Services = append(out.Services, serviceView(svc, variants))
			}
			return out, nil
		})
}

type resolveVariantInput struct {
	ServiceID       string         `json:"serviceId"`
	UserPreferences map[string]any `json:"userPreferences,omitempty"`
}

func (r *Registry) resolveVariantOp() Operation {
	return define(ToolResolveVariant,
		"Show the variants of a service and recommend one.",
		map[string]*Param{
			"serviceId":       {Type: schema.String, Desc: "The ID of the identified service", Required: true},
			"userPreferences": {Type: schema.Object, Desc: "Any user preferences for the service"},
		},
		func(ctx context.Context, in resolveVariantInput) (any, error) {
			svc, err := r.catalog.GetService(ctx, in.ServiceID)
			if err != nil {
				return nil, err
			}
			variants, err := r.catalog.ListVariants(ctx, svc.ID)
			if err != nil {
				return nil, err
			}

			out := ResolveVariantResult{
				Service:  serviceView(svc, nil),
				Variants: make([]VariantView, 0, len(variants)),
			}
			for _, v := range variants {
				out.Variants = append(out.Variants, variantView(v))
			}
			if len(out.Variants) > 0 {
				rec := out.Variants[0]
				out.RecommendedVariant = &rec
			}
			return out, nil
		})
}

type selectProviderInput struct {
	ServiceID     string        `json:"serviceId"`
	VariantID     string        `json:"variantId,omitempty"`
	Location      LocationQuery `json:"location"`
	ScheduledTime string        `json:"scheduledTime,omitempty"`
}

func (r *Registry) selectProviderOp() Operation {
	return define(ToolSelectProvider,
		"Find providers who offer a service, best rated first, and auto-assign the top one.",
		map[string]*Param{
			"serviceId":     {Type: schema.String, Desc: "The ID of the identified service", Required: true},
			"variantId":     {Type: schema.String, Desc: "The ID of the selected service variant"},
			"location":      optionalLocationParam("The location where the service is needed", true),
			"scheduledTime": {Type: schema.String, Desc: "The preferred date and time for the service", Format: FormatDateTime},
		},
		func(ctx context.Context, in selectProviderInput) (any, error) {
			svc, err := r.catalog.GetService(ctx, in.ServiceID)
			if err != nil {
				return nil, err
			}
			if in.VariantID != "" {
				if _, err := r.catalog.GetVariant(ctx, svc.ID, in.VariantID); err != nil {
					return nil, err
				}
			}

			providers, err := r.catalog.ProvidersFor(ctx, svc.ID)
			if err != nil {
				return nil, err
			}

			ranked := catalog.RankProviders(providers)
			out := SelectProviderResult{Providers: make([]ProviderView, 0, len(ranked))}
			for _, p := range ranked {
				out.Providers = append(out.Providers, providerView(p))
			}
			if len(out.Providers) > 0 {
				top := out.Providers[0]
				out.AutoAssigned = &top
			}
			return out, nil
		})
}

type availableSlotsInput struct {
	ServiceID  string        `json:"serviceId"`
	ProviderID string        `json:"providerId,omitempty"`
	Date       string        `json:"date"`
	Location   LocationQuery `json:"location"`
}

func (r *Registry) getAvailableSlotsOp() Operation {
	return define(ToolGetAvailableSlots,
		"List bookable time slots for a service on a given date.",
		map[string]*Param{
			"serviceId":  {Type: schema.String, Desc: "The ID of the selected service", Required: true},
			"providerId": {Type: schema.String, Desc: "The ID of the selected provider"},
			"date":       {Type: schema.String, Desc: "The date to check availability for", Required: true, Format: FormatDate},
			"location": {
				Type:     schema.Object,
				Desc:     "Location for the service",
				Required: true,
				Fields: map[string]*Param{
					"city": {Type: schema.String, Desc: "City name", Required: true},
					"area": {Type: schema.String, Desc: "Specific area within the city"},
				},
			},
		},
		func(ctx context.Context, in availableSlotsInput) (any, error) {
			svc, err := r.catalog.GetService(ctx, in.ServiceID)
			if err != nil {
				return nil, err
			}
			if in.ProviderID != "" {
				p, err := r.catalog.GetProvider(ctx, in.ProviderID)
				if err != nil {
					return nil, err
				}
				if !p.Offers(svc.ID) {
					return nil, invalidArgument("providerId", "does not offer "+svc.ID)
				}
			}

			day, err := time.ParseInLocation(dateLayout, in.Date, r.loc)
			if err != nil {
				return nil, invalidArgument("date", "must be a date in YYYY-MM-DD form")
			}
			now := r.orders.Now().In(r.loc)
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
			if day.Before(today) {
				return nil, invalidArgument("date", "must not be in the past")
			}

			slots, err := r.upcomingSlots(ctx, day, now)
			if err != nil {
				return nil, err
			}
			return AvailableSlotsResult{
				Date:       in.Date,
				ServiceID:  svc.ID,
				ProviderID: in.ProviderID,
				Slots:      slots,
			}, nil
		})
}

// upcomingSlots returns the daily slots of day that start after now.
func (r *Registry) upcomingSlots(ctx context.Context, day, now time.Time) ([]SlotView, error) {
	daily, err := r.catalog.DailySlots(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SlotView, 0, len(daily))
	for _, s := range daily {
		start := time.Date(day.Year(), day.Month(), day.Day(), s.Hour, s.Minute, 0, 0, r.loc)
		if !start.After(now) {
			continue
		}
		out = append(out, SlotView{Time: s.Time, Label: s.Label, StartsAt: start})
	}
	return out, nil
}
