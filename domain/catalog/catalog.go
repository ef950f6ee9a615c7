package catalog

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a service, variant or provider id is unknown.
	ErrNotFound = errors.New("catalog: not found")
	// ErrInvalidSeed is returned when reference data violates catalog invariants.
	ErrInvalidSeed = errors.New("catalog: invalid seed")
)

// Currency is the only currency the catalog prices in.
const Currency = "KES"

// DefaultPrice applies when neither a variant nor the service carries a price.
var DefaultPrice = decimal.NewFromInt(5000)

type Service struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	Category    string          `json:"category"`
}

type Variant struct {
	ID          string          `json:"id"`
	ServiceID   string          `json:"serviceId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

type Provider struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Rating        float64  `json:"rating"`
	CompletedJobs int      `json:"completedJobs"`
	Services      []string `json:"services"`
	PhotoRef      string   `json:"photoRef"`
	Phone         string   `json:"phone"`
}

// Offers reports whether the provider lists serviceID among its services.
func (p Provider) Offers(serviceID string) bool {
	return slices.Contains(p.Services, serviceID)
}

// Slot is one entry of the fixed daily slot set.
type Slot struct {
	Hour   int    `json:"-"`
	Minute int    `json:"-"`
	Time   string `json:"time"`
	Label  string `json:"label"`
}

// ServiceFilter narrows ListServices. Empty fields match everything.
type ServiceFilter struct {
	Category string
}

// Store is the read-only reference data the operations consult.
type Store interface {
	ListServices(ctx context.Context, filter ServiceFilter) ([]Service, error)
	GetService(ctx context.Context, serviceID string) (Service, error)
	ListVariants(ctx context.Context, serviceID string) ([]Variant, error)
	GetVariant(ctx context.Context, serviceID, variantID string) (Variant, error)
	GetProvider(ctx context.Context, providerID string) (Provider, error)
	ProvidersFor(ctx context.Context, serviceID string) ([]Provider, error)
	DailySlots(ctx context.Context) ([]Slot, error)
}

// ResolvePrice picks the variant price, then the service base price, then DefaultPrice.
func ResolvePrice(svc Service, variant *Variant) decimal.Decimal {
	if variant != nil && variant.Price.IsPositive() {
		return variant.Price
	}
	if svc.BasePrice.IsPositive() {
		return svc.BasePrice
	}
	return DefaultPrice
}

// RankProviders orders providers by rating, then completed jobs (both
// descending), then id ascending. The input slice is not modified.
func RankProviders(providers []Provider) []Provider {
	out := slices.Clone(providers)
	slices.SortStableFunc(out, func(a, b Provider) int {
		if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
			return c
		}
		if c := cmp.Compare(b.CompletedJobs, a.CompletedJobs); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
