package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
	"github.com/code-payments/cashier/iap/billing/memory"
	"github.com/code-payments/cashier/iap/billing/tests"
)

type countingService struct {
	billing.Service
	fetches int
}

func (s *countingService) FetchDetails(ctx context.Context, itemType billing.ItemType, skus []string) (iap.Bundle, error) {
	s.fetches++
	return s.Service.FetchDetails(ctx, itemType, skus)
}

func TestBilling_CachedService(t *testing.T) {
	catalog := memory.NewCatalog()

	// A cache per test keeps details from leaking across catalog resets.
	svc := &resettable{}
	svc.reset(catalog)

	tests.RunServiceTests(t, catalog, svc, func() {
		catalog.Reset()
		svc.reset(catalog)
	})
}

type resettable struct {
	billing.Service
}

func (r *resettable) reset(catalog *memory.Catalog) {
	r.Service = NewInCache(memory.NewService(catalog), time.Minute)
}

func TestCache_FetchDetails(t *testing.T) {
	ctx := context.Background()

	catalog := memory.NewCatalog()
	require.NoError(t, catalog.AddProduct(&iap.Product{
		VendorID:    "com.android.vending",
		SKU:         "coffee",
		Price:       "$3",
		Currency:    "USD",
		Name:        "Coffee",
		Description: "A hot cup of coffee",
		MicrosPrice: 3_000_000,
	}))

	backing := &countingService{Service: memory.NewService(catalog)}
	svc := NewInCache(backing, time.Minute)

	first, err := svc.FetchDetails(ctx, billing.ItemTypeInApp, []string{"coffee"})
	require.NoError(t, err)
	second, err := svc.FetchDetails(ctx, billing.ItemTypeInApp, []string{"coffee"})
	require.NoError(t, err)
	assert.Equal(t, 1, backing.fetches)
	assert.Equal(t, first, second)

	// Callers may modify what they get back.
	second[billing.KeyDetailsList].([]string)[0] = "garbage"
	third, err := svc.FetchDetails(ctx, billing.ItemTypeInApp, []string{"coffee"})
	require.NoError(t, err)
	assert.Equal(t, first, third)

	// Different type, different entry.
	_, err = svc.FetchDetails(ctx, billing.ItemTypeSubscription, []string{"coffee"})
	require.NoError(t, err)
	assert.Equal(t, 2, backing.fetches)

	// Failures are never cached.
	_, err = svc.FetchDetails(ctx, billing.ItemTypeSubscription, []string{"coffee"})
	require.NoError(t, err)
	assert.Equal(t, 3, backing.fetches)
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()

	catalog := memory.NewCatalog()
	backing := &countingService{Service: memory.NewService(catalog)}
	svc := NewInCache(backing, 10*time.Millisecond)

	// An empty answer for an empty request is still OK, so it is cached.
	_, err := svc.FetchDetails(ctx, billing.ItemTypeInApp, []string{})
	require.NoError(t, err)
	_, err = svc.FetchDetails(ctx, billing.ItemTypeInApp, []string{})
	require.NoError(t, err)
	assert.Equal(t, 1, backing.fetches)

	assert.Eventually(t, func() bool {
		_, err := svc.FetchDetails(ctx, billing.ItemTypeInApp, []string{})
		return err == nil && backing.fetches > 1
	}, time.Second, 20*time.Millisecond)
}
