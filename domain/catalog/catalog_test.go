package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankProvidersOrdering(t *testing.T) {
	t.Parallel()

	ranked := RankProviders([]Provider{
		{ID: "c", Rating: 4.6, CompletedJobs: 10},
		{ID: "b", Rating: 4.8, CompletedJobs: 50},
		{ID: "a", Rating: 4.8, CompletedJobs: 50},
		{ID: "d", Rating: 4.8, CompletedJobs: 90},
	})

	ids := make([]string, 0, len(ranked))
	for _, p := range ranked {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}

func TestRankProvidersDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []Provider{{ID: "low", Rating: 1}, {ID: "high", Rating: 5}}
	_ = RankProviders(in)
	assert.Equal(t, "low", in[0].ID)
}

func TestResolvePrice(t *testing.T) {
	t.Parallel()

	svc := Service{ID: "plumbing", BasePrice: decimal.NewFromInt(2000)}
	variant := Variant{ID: "plumbing-advanced", Price: decimal.NewFromInt(5000)}

	assert.True(t, ResolvePrice(svc, &variant).Equal(decimal.NewFromInt(5000)))
	assert.True(t, ResolvePrice(svc, nil).Equal(decimal.NewFromInt(2000)))
	assert.True(t, ResolvePrice(Service{ID: "free"}, nil).Equal(DefaultPrice))
}

func TestMemoryStoreLookups(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := MustDefault()

	cleaning, err := store.ListServices(ctx, ServiceFilter{Category: "Cleaning"})
	require.NoError(t, err)
	require.Len(t, cleaning, 1)
	assert.Equal(t, "cleaning", cleaning[0].ID)

	all, err := store.ListServices(ctx, ServiceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	variant, err := store.GetVariant(ctx, "plumbing", "plumbing-advanced")
	require.NoError(t, err)
	assert.True(t, variant.Price.Equal(decimal.NewFromInt(5000)))

	_, err = store.GetVariant(ctx, "plumbing", "cleaning-deep")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetService(ctx, "gardening")
	assert.ErrorIs(t, err, ErrNotFound)

	providers, err := store.ProvidersFor(ctx, "plumbing")
	require.NoError(t, err)
	for _, p := range providers {
		assert.True(t, p.Offers("plumbing"), "provider %s does not offer plumbing", p.ID)
	}
	assert.Len(t, providers, 2)

	slots, err := store.DailySlots(ctx)
	require.NoError(t, err)
	assert.Len(t, slots, 6)
}

func TestNewMemoryStoreRejectsBadSeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		seed Seed
	}{
		{
			name: "variant for unknown service",
			seed: Seed{Variants: []Variant{{ID: "x", ServiceID: "nope", Price: decimal.NewFromInt(1)}}},
		},
		{
			name: "rating out of range",
			seed: Seed{Providers: []Provider{{ID: "p", Rating: 7, Services: []string{"plumbing"}}}},
		},
		{
			name: "duplicate service",
			seed: Seed{Services: []Service{{ID: "a"}, {ID: "a"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewMemoryStore(tt.seed)
			assert.ErrorIs(t, err, ErrInvalidSeed)
		})
	}
}
