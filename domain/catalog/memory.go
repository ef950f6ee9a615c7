package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Seed is the full reference data set loaded into a MemoryStore.
type Seed struct {
	Services  []Service
	Variants  []Variant
	Providers []Provider
	Slots     []Slot
}

// MemoryStore serves a Seed from memory. It is immutable after construction
// and safe for concurrent use.
type MemoryStore struct {
	services  []Service
	byService map[string]Service
	variants  map[string][]Variant
	providers []Provider
	byID      map[string]Provider
	slots     []Slot
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(seed Seed) (*MemoryStore, error) {
	s := &MemoryStore{
		byService: make(map[string]Service, len(seed.Services)),
		variants:  make(map[string][]Variant, len(seed.Services)),
		byID:      make(map[string]Provider, len(seed.Providers)),
		slots:     slices.Clone(seed.Slots),
	}

	for _, svc := range seed.Services {
		id := strings.TrimSpace(svc.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: service id is empty", ErrInvalidSeed)
		}
		if _, dup := s.byService[id]; dup {
			return nil, fmt.Errorf("%w: duplicate service id=%s", ErrInvalidSeed, id)
		}
		if svc.BasePrice.IsNegative() {
			return nil, fmt.Errorf("%w: service id=%s has negative price", ErrInvalidSeed, id)
		}
		s.byService[id] = svc
		s.services = append(s.services, svc)
	}

	seen := make(map[string]struct{}, len(seed.Variants))
	for _, v := range seed.Variants {
		if _, ok := s.byService[v.ServiceID]; !ok {
			return nil, fmt.Errorf("%w: variant id=%s references unknown service=%s", ErrInvalidSeed, v.ID, v.ServiceID)
		}
		if _, dup := seen[v.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate variant id=%s", ErrInvalidSeed, v.ID)
		}
		if !v.Price.IsPositive() {
			return nil, fmt.Errorf("%w: variant id=%s must have a positive price", ErrInvalidSeed, v.ID)
		}
		seen[v.ID] = struct{}{}
		s.variants[v.ServiceID] = append(s.variants[v.ServiceID], v)
	}

	for _, p := range seed.Providers {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("%w: provider id is empty", ErrInvalidSeed)
		}
		if _, dup := s.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate provider id=%s", ErrInvalidSeed, p.ID)
		}
		if p.Rating < 0 || p.Rating > 5 {
			return nil, fmt.Errorf("%w: provider id=%s rating %.1f out of range", ErrInvalidSeed, p.ID, p.Rating)
		}
		if p.CompletedJobs < 0 {
			return nil, fmt.Errorf("%w: provider id=%s completed jobs negative", ErrInvalidSeed, p.ID)
		}
		if len(p.Services) == 0 {
			return nil, fmt.Errorf("%w: provider id=%s offers no services", ErrInvalidSeed, p.ID)
		}
		s.byID[p.ID] = p
		s.providers = append(s.providers, p)
	}

	return s, nil
}

// MustDefault returns a MemoryStore over DefaultSeed and panics on error.
func MustDefault() *MemoryStore {
	s, err := NewMemoryStore(DefaultSeed())
	if err != nil {
		panic(err)
	}
	return s
}

func (s *MemoryStore) ListServices(_ context.Context, filter ServiceFilter) ([]Service, error) {
	category := strings.TrimSpace(filter.Category)
	out := make([]Service, 0, len(s.services))
	for _, svc := range s.services {
		if category != "" && !strings.EqualFold(svc.Category, category) {
			continue
		}
		out = append(out, svc)
	}
	return out, nil
}

func (s *MemoryStore) GetService(_ context.Context, serviceID string) (Service, error) {
	svc, ok := s.byService[strings.TrimSpace(serviceID)]
	if !ok {
		return Service{}, fmt.Errorf("%w: service id=%s", ErrNotFound, serviceID)
	}
	return svc, nil
}

func (s *MemoryStore) ListVariants(ctx context.Context, serviceID string) ([]Variant, error) {
	if _, err := s.GetService(ctx, serviceID); err != nil {
		return nil, err
	}
	return slices.Clone(s.variants[strings.TrimSpace(serviceID)]), nil
}

func (s *MemoryStore) GetVariant(ctx context.Context, serviceID, variantID string) (Variant, error) {
	variants, err := s.ListVariants(ctx, serviceID)
	if err != nil {
		return Variant{}, err
	}
	for _, v := range variants {
		if v.ID == strings.TrimSpace(variantID) {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("%w: variant id=%s for service=%s", ErrNotFound, variantID, serviceID)
}

func (s *MemoryStore) GetProvider(_ context.Context, providerID string) (Provider, error) {
	p, ok := s.byID[strings.TrimSpace(providerID)]
	if !ok {
		return Provider{}, fmt.Errorf("%w: provider id=%s", ErrNotFound, providerID)
	}
	return p, nil
}

func (s *MemoryStore) ProvidersFor(ctx context.Context, serviceID string) ([]Provider, error) {
	if _, err := s.GetService(ctx, serviceID); err != nil {
		return nil, err
	}
	out := make([]Provider, 0, len(s.providers))
	for _, p := range s.providers {
		if p.Offers(serviceID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) DailySlots(context.Context) ([]Slot, error) {
	return slices.Clone(s.slots), nil
}

// DefaultSeed is the launch catalog for Nairobi-area home services.
func DefaultSeed() Seed {
	kes := decimal.NewFromInt
	return Seed{
		Services: []Service{
			{ID: "plumbing", Name: "Basic Plumbing", Description: "Simple repairs and maintenance", BasePrice: kes(2000), Category: "plumbing"},
			{ID: "electrical", Name: "Electrical", Description: "Electrical repairs and installations", BasePrice: kes(5000), Category: "electrical"},
			{ID: "cleaning", Name: "Cleaning", Description: "Regular home cleaning", BasePrice: kes(1500), Category: "cleaning"},
			{ID: "carpentry", Name: "Carpentry", Description: "Furniture repair and custom building", BasePrice: kes(3500), Category: "carpentry"},
			{ID: "painting", Name: "Painting", Description: "Interior and exterior painting", BasePrice: kes(3000), Category: "painting"},
		},
		Variants: []Variant{
			{ID: "plumbing-basic", ServiceID: "plumbing", Name: "Basic Plumbing", Price: kes(2000), Description: "Simple repairs and maintenance"},
			{ID: "plumbing-advanced", ServiceID: "plumbing", Name: "Advanced Plumbing", Price: kes(5000), Description: "Complex installations and repairs"},
			{ID: "cleaning-basic", ServiceID: "cleaning", Name: "Basic Cleaning", Price: kes(1500), Description: "Regular home cleaning"},
			{ID: "cleaning-deep", ServiceID: "cleaning", Name: "Deep Cleaning", Price: kes(3500), Description: "Thorough deep cleaning service"},
			{ID: "electrical-basic", ServiceID: "electrical", Name: "Basic Electrical", Price: kes(2000), Description: "Simple electrical repairs"},
			{ID: "electrical-advanced", ServiceID: "electrical", Name: "Advanced Electrical", Price: kes(4500), Description: "Complex electrical work"},
			{ID: "carpentry-repair", ServiceID: "carpentry", Name: "Furniture Repair", Price: kes(1800), Description: "Repair of existing furniture"},
			{ID: "carpentry-custom", ServiceID: "carpentry", Name: "Custom Carpentry", Price: kes(6000), Description: "Custom furniture building"},
			{ID: "painting-room", ServiceID: "painting", Name: "Room Painting", Price: kes(3000), Description: "Painting for a single room"},
			{ID: "painting-house", ServiceID: "painting", Name: "House Painting", Price: kes(15000), Description: "Painting for an entire house"},
		},
		Providers: []Provider{
			{ID: "provider1", Name: "John Kamau", Rating: 4.8, CompletedJobs: 156, Services: []string{"plumbing", "electrical"}, PhotoRef: "/placeholder-user.jpg", Phone: "+254712345678"},
			{ID: "provider2", Name: "Mary Wanjiku", Rating: 4.9, CompletedJobs: 203, Services: []string{"cleaning", "painting"}, PhotoRef: "/placeholder-user.jpg", Phone: "+254722345678"},
			{ID: "provider3", Name: "David Omondi", Rating: 4.7, CompletedJobs: 98, Services: []string{"carpentry", "painting"}, PhotoRef: "/placeholder-user.jpg", Phone: "+254733345678"},
			{ID: "provider4", Name: "Sarah Njeri", Rating: 4.6, CompletedJobs: 87, Services: []string{"plumbing", "electrical", "carpentry"}, PhotoRef: "/placeholder-user.jpg", Phone: "+254744345678"},
		},
		Slots: []Slot{
			{Hour: 9, Time: "09:00", Label: "09:00 AM"},
			{Hour: 10, Time: "10:00", Label: "10:00 AM"},
			{Hour: 11, Time: "11:00", Label: "11:00 AM"},
			{Hour: 14, Time: "14:00", Label: "02:00 PM"},
			{Hour: 15, Time: "15:00", Label: "03:00 PM"},
			{Hour: 16, Time: "16:00", Label: "04:00 PM"},
		},
	}
}
