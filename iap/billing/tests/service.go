package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
	"github.com/code-payments/cashier/iap/billing/memory"
)

const vendorID = "com.android.vending"

// RunServiceTests runs a set of tests against a billing.Service that is backed
// by catalog. teardown must leave catalog empty.
func RunServiceTests(t *testing.T, catalog *memory.Catalog, svc billing.Service, teardown func()) {
	for _, tf := range []func(t *testing.T, catalog *memory.Catalog, svc billing.Service){
		testCheckSupport,
		testFetchDetails_RoundTrip,
		testFetchDetails_TooManySKUs,
		testFetchDetails_Mismatch,
		testRequestPurchaseIntent,
		testListPurchases,
		testConsume,
	} {
		tf(t, catalog, svc)
		teardown()
	}
}

func coffee() *iap.Product {
	return &iap.Product{
		VendorID:    vendorID,
		SKU:         "coffee",
		Price:       "$3",
		Currency:    "USD",
		Name:        "Coffee",
		Description: "A hot cup of coffee",
		MicrosPrice: 3_000_000,
	}
}

func premium() *iap.Product {
	return &iap.Product{
		VendorID:       vendorID,
		SKU:            "premium",
		Price:          "€4.99",
		Currency:       "EUR",
		Name:           "Premium",
		Description:    "Monthly premium",
		IsSubscription: true,
		MicrosPrice:    4_990_000,
	}
}

func responseCode(t *testing.T, b iap.Bundle) billing.ResponseCode {
	code, _, err := billing.ResponseCodeOf(b)
	require.NoError(t, err)
	return code
}

func testCheckSupport(t *testing.T, _ *memory.Catalog, svc billing.Service) {
	ctx := context.Background()

	for _, itemType := range []billing.ItemType{billing.ItemTypeInApp, billing.ItemTypeSubscription} {
		code, err := svc.CheckSupport(ctx, itemType)
		require.NoError(t, err)
		require.Equal(t, billing.ResponseOK, code)
	}
}

func testFetchDetails_RoundTrip(t *testing.T, catalog *memory.Catalog, svc billing.Service) {
	ctx := context.Background()

	products := []*iap.Product{coffee(), premium()}
	for _, p := range products {
		require.NoError(t, catalog.AddProduct(p))
	}

	for _, p := range products {
		b, err := svc.FetchDetails(ctx, billing.ItemTypeOf(p), []string{p.SKU})
		require.NoError(t, err)
		require.Equal(t, billing.ResponseOK, responseCode(t, b))

		details, err := billing.StringList(b, billing.KeyDetailsList)
		require.NoError(t, err)
		require.Len(t, details, 1)

		var actual billing.SkuDetails
		require.NoError(t, json.Unmarshal([]byte(details[0]), &actual))
		assert.Equal(t, memory.SkuDetailsOf(p), actual)
	}
}

func testFetchDetails_TooManySKUs(t *testing.T, catalog *memory.Catalog, svc billing.Service) {
	ctx := context.Background()

	var skus []string
	for i := 0; i <= billing.MaxSKUsPerRequest; i++ {
		p := coffee()
		p.SKU = fmt.Sprintf("coffee-%d", i)
		require.NoError(t, catalog.AddProduct(p))
		skus = append(skus, p.SKU)
	}

	b, err := svc.FetchDetails(ctx, billing.ItemTypeInApp, skus)
	require.NoError(t, err)
	require.Equal(t, billing.ResponseDeveloperError, responseCode(t, b))

	b, err = svc.FetchDetails(ctx, billing.ItemTypeInApp, skus[:billing.MaxSKUsPerRequest])
	require.NoError(t, err)
	require.Equal(t, billing.ResponseOK, responseCode(t, b))
}

func testFetchDetails_Mismatch(t *testing.T, catalog *memory.Catalog, svc billing.Service) {
	ctx := context.Background()

	require.NoError(t, catalog.AddProduct(coffee()))
	require.NoError(t, catalog.AddProduct(premium()))

	// Wrong type for premium.
	b, err := svc.FetchDetails(ctx, billing.ItemTypeInApp, []string{"coffee", "premium"})
	require.NoError(t, err)
	require.Equal(t, billing.ResponseDeveloperError, responseCode(t, b))

	details, err := billing.StringList(b, billing.KeyDetailsList)
	require.NoError(t, err)
	require.Len(t, details, 1)

	b, err = svc.FetchDetails(ctx, billing.ItemTypeInApp, []string{"unknown"})
	require.NoError(t, err)
	require.Equal(t, billing.ResponseDeveloperError, responseCode(t, b))
}

func testRequestPurchaseIntent(t *testing.T, catalog *memory.Catalog, svc billing.Service) {
	ctx := context.Background()

	b, err := svc.RequestPurchaseIntent(ctx, "coffee", billing.ItemTypeInApp, "")
	require.NoError(t, err)
	require.Equal(t, billing.ResponseItemUnavailable, responseCode(t, b))
	require.Nil(t, billing.PendingIntentOf(b))

	require.NoError(t, catalog.AddProduct(coffee()))

	b, err = svc.RequestPurchaseIntent(ctx, "coffee", billing.ItemTypeInApp, "payload")
	require.NoError(t, err)
	require.Equal(t, billing.ResponseOK, responseCode(t, b))

	intent := billing.PendingIntentOf(b)
	require.NotNil(t, intent)
	assert.NotEmpty(t, intent.ID)
	assert.Equal(t, "coffee", intent.SKU)
	assert.Equal(t, billing.ItemTypeInApp, intent.ItemType)
	assert.Equal(t, "payload", intent.DeveloperPayload)

	// Nothing is owned until the flow completes.
	b, err = svc.RequestPurchaseIntent(ctx, "coffee", billing.ItemTypeInApp, "payload")
	require.NoError(t, err)
	require.Equal(t, billing.ResponseOK, responseCode(t, b))

	result, err := catalog.Checkout(intent)
	require.NoError(t, err)
	require.Equal(t, billing.ResponseOK, responseCode(t, result))

	b, err = svc.RequestPurchaseIntent(ctx, "coffee", billing.ItemTypeInApp, "payload")
	require.NoError(t, err)
	require.Equal(t, billing.ResponseItemAlreadyOwned, responseCode(t, b))
}

func testListPurchases(t *testing.T, catalog *memory.Catalog, svc billing.Service) {
	ctx := context.Background()

	b, err := svc.ListPurchases(ctx, billing.ItemTypeInApp, "")
	require.NoError(t, err)
	require.Equal(t, billing.ResponseOK, responseCode(t, b))
	skus, err := billing.StringList(b, billing.KeyPurchaseItemList)
	require.NoError(t, err)
	require.Empty(t, skus)

	catalog.AddPurchase(&iap.Purchase{Product: coffee(), Token: "coffee-token", Receipt: `{"productId":"coffee"}`})
	catalog.AddPurchase(&iap.Purchase{Product: premium(), Token: "premium-token", Receipt: `{"productId":"premium"}`})

	for _, tc := range []struct {
		itemType billing.ItemType
		sku      string
		receipt  string
	}{
		{billing.ItemTypeInApp, "coffee", `{"productId":"coffee"}`},
		{billing.ItemTypeSubscription, "premium", `{"productId":"premium"}`},
	} {
		b, err := svc.ListPurchases(ctx, tc.itemType, "")
		require.NoError(t, err)
		require.Equal(t, billing.ResponseOK, responseCode(t, b))

		skus, err := billing.StringList(b, billing.KeyPurchaseItemList)
		require.NoError(t, err)
		require.Equal(t, []string{tc.sku}, skus)

		data, err := billing.StringList(b, billing.KeyPurchaseDataList)
		require.NoError(t, err)
		require.Equal(t, []string{tc.receipt}, data)

		signatures, err := billing.StringList(b, billing.KeyDataSignatureList)
		require.NoError(t, err)
		require.Len(t, signatures, 1)

		require.Empty(t, billing.String(b, billing.KeyContinuationToken))
	}
}

func testConsume(t *testing.T, catalog *memory.Catalog, svc billing.Service) {
	ctx := context.Background()

	catalog.AddPurchase(&iap.Purchase{Product: coffee(), Token: "a", Receipt: "{}"})
	catalog.AddPurchase(&iap.Purchase{Product: coffee(), Token: "b", Receipt: "{}"})

	code, err := svc.Consume(ctx, "missing")
	require.NoError(t, err)
	require.Equal(t, billing.ResponseItemNotOwned, code)
	require.Len(t, catalog.Purchases(), 2)

	code, err = svc.Consume(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, billing.ResponseOK, code)

	remaining := catalog.Purchases()
	require.Len(t, remaining, 1)
	require.Equal(t, "b", remaining[0].Token)

	code, err = svc.Consume(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, billing.ResponseItemNotOwned, code)
	require.Len(t, catalog.Purchases(), 1)
}
