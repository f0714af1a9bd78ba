package googleplay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
	"github.com/code-payments/cashier/iap/billing/memory"
)

const testPackage = "com.example.shop"

type testEnv struct {
	catalog *memory.Catalog
	service *memory.Service
	binder  *memory.Binder
	host    *memory.Host
	vendor  *Vendor
}

func setup(t *testing.T, opts ...memory.Option) *testEnv {
	catalog := memory.NewCatalog()
	catalog.PackageName = testPackage

	svc := memory.NewService(catalog, opts...)
	binder := memory.NewBinder(svc)

	return &testEnv{
		catalog: catalog,
		service: svc,
		binder:  binder,
		host:    memory.NewHost(catalog, VendorID),
		vendor:  NewVendor(testPackage, binder, zaptest.NewLogger(t)),
	}
}

type initResult struct {
	initialized int
	unavailable int
}

func (r *initResult) listener() iap.InitializationListener {
	return iap.InitializationCallbacks{
		OnInitialized: func() { r.initialized++ },
		OnUnavailable: func() { r.unavailable++ },
	}
}

func (e *testEnv) initialize(t *testing.T) {
	var res initResult
	e.vendor.Initialize(context.Background(), e.host, res.listener())
	require.Equal(t, 1, res.initialized)
	require.Equal(t, 0, res.unavailable)
}

type purchaseResult struct {
	purchase *iap.Purchase
	product  *iap.Product
	err      *iap.Error
}

func (r *purchaseResult) listener() iap.PurchaseListener {
	return iap.PurchaseCallbacks{
		OnSuccess: func(p *iap.Purchase) { r.purchase = p },
		OnFailure: func(p *iap.Product, err *iap.Error) {
			r.product = p
			r.err = err
		},
	}
}

func coffee() *iap.Product {
	return &iap.Product{
		VendorID:    VendorID,
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
		VendorID:       VendorID,
		SKU:            "premium",
		Price:          "$4.99",
		Currency:       "USD",
		Name:           "Premium",
		Description:    "Monthly premium",
		IsSubscription: true,
		MicrosPrice:    4_990_000,
	}
}

func TestVendor_Initialize(t *testing.T) {
	e := setup(t)
	assert.Equal(t, StateUninitialized, e.vendor.State())
	assert.False(t, e.vendor.Available())

	e.initialize(t)
	assert.Equal(t, StateCapable, e.vendor.State())
	assert.True(t, e.vendor.Available())
	assert.Equal(t, 1, e.binder.Bound())

	// Already initialized, so no second bind.
	e.initialize(t)
	assert.Equal(t, 1, e.binder.Bound())
}

func TestVendor_Initialize_Unresolvable(t *testing.T) {
	e := setup(t)
	e.binder.Unresolvable = true

	var res initResult
	e.vendor.Initialize(context.Background(), e.host, res.listener())
	assert.Equal(t, 0, res.initialized)
	assert.Equal(t, 1, res.unavailable)
	assert.Equal(t, StateIncapable, e.vendor.State())
	assert.False(t, e.vendor.Available())
	assert.Equal(t, 0, e.binder.Bound())
}

func TestVendor_Initialize_PermissionDenied(t *testing.T) {
	e := setup(t)
	e.binder.DenyPermission = true

	var res initResult
	e.vendor.Initialize(context.Background(), e.host, res.listener())
	assert.Equal(t, 0, res.initialized)
	assert.Equal(t, 1, res.unavailable)
	assert.Equal(t, StateIncapable, e.vendor.State())
	assert.False(t, e.vendor.Available())

	// Binding may be retried once the permission is granted.
	e.binder.DenyPermission = false
	e.initialize(t)
	assert.Equal(t, StateCapable, e.vendor.State())
	assert.True(t, e.vendor.Available())
}

func TestVendor_Initialize_Asynchronous(t *testing.T) {
	e := setup(t)
	e.binder.Manual = true

	var res initResult
	e.vendor.Initialize(context.Background(), e.host, res.listener())
	assert.Equal(t, 0, res.initialized)
	assert.Equal(t, 0, res.unavailable)
	assert.Equal(t, StateConnecting, e.vendor.State())
	assert.False(t, e.vendor.Available())

	e.binder.Connect()
	assert.Equal(t, 1, res.initialized)
	assert.Equal(t, 0, res.unavailable)
	assert.Equal(t, StateCapable, e.vendor.State())
	assert.True(t, e.vendor.Available())
}

func TestVendor_NoCapabilities(t *testing.T) {
	e := setup(t, memory.WithUnsupported(billing.ItemTypeInApp, billing.ItemTypeSubscription))

	// The listener hears about success even though nothing can be bought.
	e.initialize(t)
	assert.Equal(t, StateIncapable, e.vendor.State())
	assert.False(t, e.vendor.Available())
	assert.False(t, e.vendor.CanPurchase(coffee()))
	assert.False(t, e.vendor.CanPurchase(premium()))
}

func TestVendor_CanPurchase(t *testing.T) {
	for _, tc := range []struct {
		unsupported []billing.ItemType
		items       bool
		subs        bool
	}{
		{nil, true, true},
		{[]billing.ItemType{billing.ItemTypeSubscription}, true, false},
		{[]billing.ItemType{billing.ItemTypeInApp}, false, true},
		{[]billing.ItemType{billing.ItemTypeInApp, billing.ItemTypeSubscription}, false, false},
	} {
		t.Run(fmt.Sprintf("items=%t,subs=%t", tc.items, tc.subs), func(t *testing.T) {
			e := setup(t, memory.WithUnsupported(tc.unsupported...))
			e.initialize(t)

			assert.Equal(t, tc.items, e.vendor.CanPurchase(coffee()))
			assert.Equal(t, tc.subs, e.vendor.CanPurchase(premium()))
			assert.Equal(t, tc.items || tc.subs, e.vendor.Available())
		})
	}
}

func TestVendor_Purchase(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.catalog.AddProduct(coffee()))
	e.initialize(t)

	var res purchaseResult
	e.vendor.Purchase(context.Background(), e.host, coffee(), "payload", res.listener())
	require.Nil(t, res.purchase)
	require.Nil(t, res.err)

	launch, ok := e.host.LastLaunch()
	require.True(t, ok)
	intent, ok := launch.Intent.(*billing.PendingIntent)
	require.True(t, ok)
	assert.Equal(t, "coffee", intent.SKU)
	assert.Equal(t, "payload", intent.DeveloperPayload)

	handled, err := e.host.Complete(e.vendor)
	require.NoError(t, err)
	assert.True(t, handled)

	require.Nil(t, res.err)
	require.NotNil(t, res.purchase)
	assert.Equal(t, coffee(), res.purchase.Product)
	assert.NotEmpty(t, res.purchase.Token)
	assert.NotEmpty(t, res.purchase.OrderID)
	assert.Equal(t, "payload", res.purchase.DeveloperPayload)
	assert.Equal(t, "TEST-DATA-SIGNATURE-coffee", res.purchase.Signature)

	owned := e.catalog.Purchases()
	require.Len(t, owned, 1)
	assert.Equal(t, owned[0].Token, res.purchase.Token)

	// The request is settled, so the same result is no longer ours.
	assert.False(t, e.host.Deliver(e.vendor, launch.RequestCode, iap.ResultOK, iap.Bundle{}))
}

func TestVendor_Purchase_DefaultPayload(t *testing.T) {
	e := setup(t)
	e.vendor = NewVendor(testPackage, e.binder, zaptest.NewLogger(t), WithDeveloperPayload("default"))
	require.NoError(t, e.catalog.AddProduct(coffee()))
	e.initialize(t)

	var res purchaseResult
	e.vendor.Purchase(context.Background(), e.host, coffee(), "", res.listener())

	launch, ok := e.host.LastLaunch()
	require.True(t, ok)
	assert.Equal(t, "default", launch.Intent.(*billing.PendingIntent).DeveloperPayload)
}

func TestVendor_Purchase_Failures(t *testing.T) {
	t.Run("item unavailable", func(t *testing.T) {
		e := setup(t)
		e.initialize(t)

		var res purchaseResult
		e.vendor.Purchase(context.Background(), e.host, coffee(), "", res.listener())
		require.NotNil(t, res.err)
		assert.Equal(t, iap.CodeUnavailable, res.err.Code)
		assert.Equal(t, int(billing.ResponseItemUnavailable), res.err.VendorCode)
		assert.Equal(t, iap.OpPurchase, res.err.Op)
		assert.Equal(t, "coffee", res.product.SKU)
		assert.Empty(t, e.host.Launches())
	})

	t.Run("already owned", func(t *testing.T) {
		e := setup(t)
		require.NoError(t, e.catalog.AddProduct(coffee()))
		e.initialize(t)

		var first purchaseResult
		e.vendor.Purchase(context.Background(), e.host, coffee(), "", first.listener())
		_, err := e.host.Complete(e.vendor)
		require.NoError(t, err)
		require.NotNil(t, first.purchase)

		var second purchaseResult
		e.vendor.Purchase(context.Background(), e.host, coffee(), "", second.listener())
		require.NotNil(t, second.err)
		assert.True(t, errors.Is(second.err, iap.ErrAlreadyOwned))
	})

	t.Run("canceled", func(t *testing.T) {
		e := setup(t)
		require.NoError(t, e.catalog.AddProduct(coffee()))
		e.initialize(t)

		var res purchaseResult
		e.vendor.Purchase(context.Background(), e.host, coffee(), "", res.listener())
		handled, err := e.host.Cancel(e.vendor)
		require.NoError(t, err)
		assert.True(t, handled)

		require.NotNil(t, res.err)
		assert.True(t, errors.Is(res.err, iap.ErrCanceled))
		assert.Empty(t, e.catalog.Purchases())
	})

	t.Run("launch error", func(t *testing.T) {
		e := setup(t)
		require.NoError(t, e.catalog.AddProduct(coffee()))
		e.initialize(t)
		e.host.LaunchErr = errors.New("no activity")

		var res purchaseResult
		e.vendor.Purchase(context.Background(), e.host, coffee(), "", res.listener())
		require.NotNil(t, res.err)
		assert.Equal(t, iap.CodeFailure, res.err.Code)
		assert.Equal(t, int(billing.ResponseError), res.err.VendorCode)
	})

	t.Run("missing intent", func(t *testing.T) {
		e := setup(t)
		e.vendor = NewVendor(testPackage, memory.NewBinder(&noIntentService{e.service}), zaptest.NewLogger(t))
		require.NoError(t, e.catalog.AddProduct(coffee()))
		e.initialize(t)

		var res purchaseResult
		e.vendor.Purchase(context.Background(), e.host, coffee(), "", res.listener())
		require.NotNil(t, res.err)
		assert.Equal(t, iap.CodeFailure, res.err.Code)
		assert.Equal(t, int(billing.ResponseOK), res.err.VendorCode)
		assert.Empty(t, e.host.Launches())
	})
}

func TestVendor_Purchase_Preconditions(t *testing.T) {
	e := setup(t, memory.WithUnsupported(billing.ItemTypeSubscription))
	require.NoError(t, e.catalog.AddProduct(premium()))

	var res purchaseResult
	assert.Panics(t, func() {
		e.vendor.Purchase(context.Background(), e.host, coffee(), "", res.listener())
	})

	e.initialize(t)
	assert.Panics(t, func() {
		e.vendor.Purchase(context.Background(), e.host, premium(), "", res.listener())
	})
}

func TestVendor_OnActivityResult(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.catalog.AddProduct(coffee()))
	e.initialize(t)

	assert.False(t, e.host.Deliver(e.vendor, 1, iap.ResultOK, iap.Bundle{}))

	var res purchaseResult
	e.vendor.Purchase(context.Background(), e.host, coffee(), "", res.listener())
	launch, ok := e.host.LastLaunch()
	require.True(t, ok)

	// Someone else's result leaves the pending purchase alone.
	assert.False(t, e.host.Deliver(e.vendor, launch.RequestCode+1, iap.ResultOK, nil))
	assert.Nil(t, res.err)
	assert.Nil(t, res.purchase)

	handled, err := e.host.Complete(e.vendor)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.NotNil(t, res.purchase)
}

func TestVendor_OnActivityResult_Payloads(t *testing.T) {
	for _, tc := range []struct {
		name       string
		resultCode iap.ResultCode
		data       iap.Bundle
		expected   iap.Code
		vendorCode billing.ResponseCode
	}{
		{"nil data", iap.ResultOK, nil, iap.CodeFailure, billing.ResponseError},
		{"canceled", iap.ResultCanceled, iap.Bundle{billing.KeyResponseCode: billing.ResponseUserCanceled}, iap.CodeCanceled, billing.ResponseUserCanceled},
		{"canceled without code", iap.ResultCanceled, iap.Bundle{}, iap.CodeFailure, billing.ResponseOK},
		{"ok with error code", iap.ResultOK, iap.Bundle{billing.KeyResponseCode: 7}, iap.CodeAlreadyOwned, billing.ResponseItemAlreadyOwned},
		{"malformed code", iap.ResultOK, iap.Bundle{billing.KeyResponseCode: "OK"}, iap.CodeFailure, billing.ResponseError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := setup(t)
			require.NoError(t, e.catalog.AddProduct(coffee()))
			e.initialize(t)

			var res purchaseResult
			e.vendor.Purchase(context.Background(), e.host, coffee(), "", res.listener())
			launch, ok := e.host.LastLaunch()
			require.True(t, ok)

			assert.True(t, e.host.Deliver(e.vendor, launch.RequestCode, tc.resultCode, tc.data))
			assert.Nil(t, res.purchase)
			require.NotNil(t, res.err)
			assert.Equal(t, tc.expected, res.err.Code)
			assert.Equal(t, int(tc.vendorCode), res.err.VendorCode)
		})
	}
}

func TestVendor_OnActivityResult_PartialData(t *testing.T) {
	for _, tc := range []struct {
		name      string
		data      iap.Bundle
		token     string
		receipt   string
		signature string
	}{
		{
			name: "missing code and data",
			data: iap.Bundle{},
		},
		{
			name: "ok without data",
			data: iap.Bundle{billing.KeyResponseCode: billing.ResponseOK},
		},
		{
			name: "unreadable data",
			data: iap.Bundle{
				billing.KeyPurchaseData:  "not json",
				billing.KeyDataSignature: "signature",
			},
			receipt:   "not json",
			signature: "signature",
		},
		{
			name: "data without token",
			data: iap.Bundle{
				billing.KeyResponseCode: billing.ResponseOK,
				billing.KeyPurchaseData: `{"productId":"coffee","orderId":"GPA.7"}`,
			},
			receipt: `{"productId":"coffee","orderId":"GPA.7"}`,
		},
		{
			name: "data for another product",
			data: iap.Bundle{
				billing.KeyPurchaseData: `{"productId":"tea","purchaseToken":"token"}`,
			},
			token:   "token",
			receipt: `{"productId":"tea","purchaseToken":"token"}`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := setup(t)
			require.NoError(t, e.catalog.AddProduct(coffee()))
			e.initialize(t)

			var res purchaseResult
			e.vendor.Purchase(context.Background(), e.host, coffee(), "", res.listener())
			launch, ok := e.host.LastLaunch()
			require.True(t, ok)

			assert.True(t, e.host.Deliver(e.vendor, launch.RequestCode, iap.ResultOK, tc.data))
			require.Nil(t, res.err)
			require.NotNil(t, res.purchase)
			assert.Equal(t, coffee(), res.purchase.Product)
			assert.Equal(t, tc.token, res.purchase.Token)
			assert.Equal(t, tc.receipt, res.purchase.Receipt)
			assert.Equal(t, tc.signature, res.purchase.Signature)
		})
	}
}

func TestVendor_OverwritePendingPurchase(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.catalog.AddProduct(coffee()))
	require.NoError(t, e.catalog.AddProduct(premium()))
	e.initialize(t)

	var first, second purchaseResult
	e.vendor.Purchase(context.Background(), e.host, coffee(), "", first.listener())
	e.vendor.Purchase(context.Background(), e.host, premium(), "", second.listener())

	launches := e.host.Launches()
	require.Len(t, launches, 2)
	assert.NotEqual(t, launches[0].RequestCode, launches[1].RequestCode)

	// The first request was replaced.
	assert.False(t, e.host.Deliver(e.vendor, launches[0].RequestCode, iap.ResultOK, iap.Bundle{}))

	handled, err := e.host.Complete(e.vendor)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Nil(t, first.purchase)
	assert.Nil(t, first.err)
	require.NotNil(t, second.purchase)
	assert.Equal(t, "premium", second.purchase.Product.SKU)
}

func TestVendor_Consume(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.catalog.AddProduct(coffee()))
	e.initialize(t)

	var bought purchaseResult
	e.vendor.Purchase(context.Background(), e.host, coffee(), "", bought.listener())
	_, err := e.host.Complete(e.vendor)
	require.NoError(t, err)
	require.NotNil(t, bought.purchase)

	var consumed *iap.Purchase
	var consumeErr *iap.Error
	listener := iap.ConsumeCallbacks{
		OnSuccess: func(p *iap.Purchase) { consumed = p },
		OnFailure: func(_ *iap.Purchase, err *iap.Error) { consumeErr = err },
	}

	e.vendor.Consume(context.Background(), e.host, bought.purchase, listener)
	require.Nil(t, consumeErr)
	assert.Equal(t, bought.purchase, consumed)
	assert.Empty(t, e.catalog.Purchases())

	consumed = nil
	e.vendor.Consume(context.Background(), e.host, bought.purchase, listener)
	assert.Nil(t, consumed)
	require.NotNil(t, consumeErr)
	assert.True(t, errors.Is(consumeErr, iap.ErrNotOwned))
	assert.Equal(t, iap.OpConsume, consumeErr.Op)

	assert.Panics(t, func() {
		e.vendor.Consume(context.Background(), e.host, &iap.Purchase{Product: premium(), Token: "t"}, listener)
	})
}

func TestVendor_GetInventory(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.catalog.AddProduct(coffee()))
	require.NoError(t, e.catalog.AddProduct(premium()))

	tea := coffee()
	tea.SKU = "tea"
	tea.Name = "Tea"
	require.NoError(t, e.catalog.AddProduct(tea))
	e.initialize(t)

	var bought purchaseResult
	e.vendor.Purchase(context.Background(), e.host, premium(), "", bought.listener())
	_, err := e.host.Complete(e.vendor)
	require.NoError(t, err)
	require.NotNil(t, bought.purchase)

	var inventory *iap.Inventory
	var invErr *iap.Error
	e.vendor.GetInventory(context.Background(), e.host, []string{"coffee", "tea", "coffee"}, nil, iap.InventoryCallbacks{
		OnSuccess: func(i *iap.Inventory) { inventory = i },
		OnFailure: func(err *iap.Error) { invErr = err },
	})
	require.Nil(t, invErr)
	require.NotNil(t, inventory)

	require.Len(t, inventory.Purchases, 1)
	assert.Equal(t, premium(), inventory.Purchases[0].Product)
	assert.Equal(t, bought.purchase.Token, inventory.Purchases[0].Token)

	require.Len(t, inventory.Products, 2)
	product, ok := inventory.Product("tea")
	require.True(t, ok)
	assert.Equal(t, tea, product)
	product, ok = inventory.Product("coffee")
	require.True(t, ok)
	assert.Equal(t, coffee(), product)
}

func TestVendor_GetInventory_Pages(t *testing.T) {
	e := setup(t)
	paged := &pagedService{Service: e.service, pageSize: 1}
	e.vendor = NewVendor(testPackage, memory.NewBinder(paged), zaptest.NewLogger(t))

	tea := coffee()
	tea.SKU = "tea"
	require.NoError(t, e.catalog.AddProduct(coffee()))
	require.NoError(t, e.catalog.AddProduct(tea))
	e.initialize(t)

	for _, p := range []*iap.Product{coffee(), tea} {
		var bought purchaseResult
		e.vendor.Purchase(context.Background(), e.host, p, "", bought.listener())
		_, err := e.host.Complete(e.vendor)
		require.NoError(t, err)
		require.NotNil(t, bought.purchase)
	}

	inventory, invErr := getInventory(e.vendor, e.host, nil, nil)
	require.Nil(t, invErr)
	require.Len(t, inventory.Purchases, 2)
	assert.Equal(t, "coffee", inventory.Purchases[0].Product.SKU)
	assert.Equal(t, "tea", inventory.Purchases[1].Product.SKU)
	assert.Equal(t, tea, inventory.Purchases[1].Product)
	assert.Equal(t, []string{"", "1"}, paged.tokens(billing.ItemTypeInApp))

	// A service that never stops paging.
	paged.endless = true
	_, invErr = getInventory(e.vendor, e.host, nil, nil)
	require.NotNil(t, invErr)
	assert.Equal(t, iap.CodeFailure, invErr.Code)
	assert.Equal(t, int(billing.ResponseError), invErr.VendorCode)
}

func TestVendor_GetInventory_Batches(t *testing.T) {
	e := setup(t)
	batched := &pagedService{Service: e.service}
	e.vendor = NewVendor(testPackage, memory.NewBinder(batched), zaptest.NewLogger(t))

	var skus []string
	for i := 0; i < 2*billing.MaxSKUsPerRequest+5; i++ {
		p := coffee()
		p.SKU = fmt.Sprintf("coffee-%d", i)
		require.NoError(t, e.catalog.AddProduct(p))
		skus = append(skus, p.SKU)
	}
	e.initialize(t)

	inventory, invErr := getInventory(e.vendor, e.host, skus, nil)
	require.Nil(t, invErr)
	require.Len(t, inventory.Products, len(skus))
	for _, sku := range skus {
		_, ok := inventory.Product(sku)
		assert.True(t, ok, sku)
	}

	assert.Equal(t, []int{billing.MaxSKUsPerRequest, billing.MaxSKUsPerRequest, 5}, batched.batches)
}

func TestVendor_GetInventory_RetiredProduct(t *testing.T) {
	e := setup(t)
	e.initialize(t)

	// Owned, but no longer in the catalog.
	e.catalog.AddPurchase(&iap.Purchase{
		Product: &iap.Product{VendorID: VendorID, SKU: "retired"},
		Token:   "retired-token",
		Receipt: `{"productId":"retired","purchaseToken":"retired-token"}`,
	})

	inventory, invErr := getInventory(e.vendor, e.host, nil, nil)
	require.Nil(t, invErr)
	require.Len(t, inventory.Purchases, 1)
	assert.Equal(t, placeholderProduct("retired", false), inventory.Purchases[0].Product)
	assert.Equal(t, "retired-token", inventory.Purchases[0].Token)
	assert.Empty(t, inventory.Products)

	// An unknown sku that was asked for still fails.
	_, invErr = getInventory(e.vendor, e.host, []string{"unknown"}, nil)
	require.NotNil(t, invErr)
	assert.Equal(t, int(billing.ResponseDeveloperError), invErr.VendorCode)
}

func TestVendor_GetInventory_Uninitialized(t *testing.T) {
	e := setup(t)

	var invErr *iap.Error
	e.vendor.GetInventory(context.Background(), e.host, nil, nil, iap.InventoryCallbacks{
		OnFailure: func(err *iap.Error) { invErr = err },
	})
	require.NotNil(t, invErr)
	assert.True(t, errors.Is(invErr, iap.ErrUnavailable))
	assert.Equal(t, iap.NoVendorCode, invErr.VendorCode)
}

func TestVendor_GetProductDetails(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.catalog.AddProduct(premium()))
	e.initialize(t)

	var product *iap.Product
	var detailsErr *iap.Error
	listener := iap.ProductDetailsCallbacks{
		OnSuccess: func(p *iap.Product) { product = p },
		OnFailure: func(err *iap.Error) { detailsErr = err },
	}

	e.vendor.GetProductDetails(context.Background(), e.host, "premium", true, listener)
	require.Nil(t, detailsErr)
	assert.Equal(t, premium(), product)

	// Same sku, wrong type.
	product = nil
	e.vendor.GetProductDetails(context.Background(), e.host, "premium", false, listener)
	assert.Nil(t, product)
	require.NotNil(t, detailsErr)
	assert.Equal(t, iap.CodeFailure, detailsErr.Code)
	assert.Equal(t, int(billing.ResponseDeveloperError), detailsErr.VendorCode)
}

func TestVendor_Disconnect(t *testing.T) {
	e := setup(t)
	e.initialize(t)
	require.True(t, e.vendor.Available())

	e.binder.Disconnect()
	assert.False(t, e.vendor.Available())
	assert.Equal(t, StateIncapable, e.vendor.State())

	var invErr *iap.Error
	e.vendor.GetInventory(context.Background(), e.host, nil, nil, iap.InventoryCallbacks{
		OnFailure: func(err *iap.Error) { invErr = err },
	})
	require.NotNil(t, invErr)
	assert.Equal(t, iap.CodeUnavailable, invErr.Code)

	var consumeErr *iap.Error
	e.vendor.Consume(context.Background(), e.host, &iap.Purchase{Product: coffee(), Token: "t"}, iap.ConsumeCallbacks{
		OnFailure: func(_ *iap.Purchase, err *iap.Error) { consumeErr = err },
	})
	require.NotNil(t, consumeErr)
	assert.Equal(t, iap.CodeUnavailable, consumeErr.Code)

	// Still bound, so dispose releases the binding.
	e.vendor.Dispose(e.host)
	assert.Equal(t, 0, e.binder.Bound())
}

func TestVendor_DisconnectWhileConnecting(t *testing.T) {
	e := setup(t)
	e.binder.Manual = true

	var res initResult
	e.vendor.Initialize(context.Background(), e.host, res.listener())
	require.Equal(t, StateConnecting, e.vendor.State())

	e.binder.Disconnect()
	assert.Equal(t, 0, res.initialized)
	assert.Equal(t, 1, res.unavailable)
	assert.Equal(t, StateIncapable, e.vendor.State())
	assert.False(t, e.vendor.Available())

	// A later connection doesn't notify the same listener twice.
	e.binder.Connect()
	assert.Equal(t, 0, res.initialized)
	assert.Equal(t, 1, res.unavailable)
	assert.Equal(t, StateCapable, e.vendor.State())
	assert.True(t, e.vendor.Available())
}

func TestVendor_DisconnectDuringProbe(t *testing.T) {
	e := setup(t)
	svc := &probeHookService{Service: e.service}
	binder := memory.NewBinder(svc)
	svc.onProbe = binder.Disconnect
	e.vendor = NewVendor(testPackage, binder, zaptest.NewLogger(t))

	var res initResult
	e.vendor.Initialize(context.Background(), e.host, res.listener())
	assert.Equal(t, 0, res.initialized)
	assert.Equal(t, 1, res.unavailable)
	assert.Equal(t, StateIncapable, e.vendor.State())
	assert.False(t, e.vendor.Available())
}

func TestVendor_Dispose(t *testing.T) {
	e := setup(t)

	// Nothing bound yet.
	e.vendor.Dispose(e.host)
	assert.Equal(t, StateUninitialized, e.vendor.State())

	e.initialize(t)
	require.Equal(t, 1, e.binder.Bound())

	e.vendor.Dispose(e.host)
	assert.Equal(t, StateDisposed, e.vendor.State())
	assert.Equal(t, 0, e.binder.Bound())

	// Disposed is terminal.
	e.vendor.Dispose(e.host)
	assert.Equal(t, StateDisposed, e.vendor.State())
}

func TestVendor_FromJSON(t *testing.T) {
	e := setup(t)

	data, err := coffee().JSON()
	require.NoError(t, err)
	product, err := e.vendor.ProductFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, coffee(), product)

	purchase := &iap.Purchase{Product: coffee(), Token: "token", Receipt: "{}"}
	data, err = purchase.JSON()
	require.NoError(t, err)
	parsed, err := e.vendor.PurchaseFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, purchase, parsed)

	other := coffee()
	other.VendorID = "com.amazon.venezia"
	data, err = other.JSON()
	require.NoError(t, err)
	_, err = e.vendor.ProductFromJSON(data)
	assert.Error(t, err)

	_, err = e.vendor.ProductFromJSON([]byte(`{"sku":"coffee"}`))
	assert.Error(t, err)
}

func TestRequestCodes(t *testing.T) {
	seen := make(map[int]struct{})
	for range 1000 {
		code := nextRequestCode()
		assert.GreaterOrEqual(t, code, 0)
		_, dup := seen[code]
		require.False(t, dup)
		seen[code] = struct{}{}
	}
}

type noIntentService struct {
	billing.Service
}

func (s *noIntentService) RequestPurchaseIntent(ctx context.Context, sku string, itemType billing.ItemType, developerPayload string) (iap.Bundle, error) {
	b, err := s.Service.RequestPurchaseIntent(ctx, sku, itemType, developerPayload)
	if err != nil {
		return nil, err
	}
	delete(b, billing.KeyBuyIntent)
	return b, nil
}

func getInventory(v *Vendor, host iap.Host, itemSKUs, subSKUs []string) (*iap.Inventory, *iap.Error) {
	var inventory *iap.Inventory
	var invErr *iap.Error
	v.GetInventory(context.Background(), host, itemSKUs, subSKUs, iap.InventoryCallbacks{
		OnSuccess: func(i *iap.Inventory) { inventory = i },
		OnFailure: func(err *iap.Error) { invErr = err },
	})
	return inventory, invErr
}

// pagedService splits owned purchases into pages of pageSize and records the
// size of every details batch.
type pagedService struct {
	billing.Service

	pageSize int
	endless  bool

	seen    map[billing.ItemType][]string
	batches []int
}

func (s *pagedService) FetchDetails(ctx context.Context, itemType billing.ItemType, skus []string) (iap.Bundle, error) {
	s.batches = append(s.batches, len(skus))
	return s.Service.FetchDetails(ctx, itemType, skus)
}

func (s *pagedService) ListPurchases(ctx context.Context, itemType billing.ItemType, continuationToken string) (iap.Bundle, error) {
	if s.seen == nil {
		s.seen = make(map[billing.ItemType][]string)
	}
	s.seen[itemType] = append(s.seen[itemType], continuationToken)

	b, err := s.Service.ListPurchases(ctx, itemType, "")
	if err != nil || s.pageSize == 0 {
		return b, err
	}

	start := 0
	if continuationToken != "" {
		start, err = strconv.Atoi(continuationToken)
		if err != nil {
			return nil, err
		}
	}

	if s.endless {
		b[billing.KeyPurchaseItemList] = []string{}
		b[billing.KeyPurchaseDataList] = []string{}
		b[billing.KeyDataSignatureList] = []string{}
		b[billing.KeyContinuationToken] = strconv.Itoa(start + 1)
		return b, nil
	}

	for _, key := range []string{billing.KeyPurchaseItemList, billing.KeyPurchaseDataList, billing.KeyDataSignatureList} {
		list := b[key].([]string)
		end := min(start+s.pageSize, len(list))
		b[key] = list[start:end]
		if key == billing.KeyPurchaseItemList && end < len(list) {
			b[billing.KeyContinuationToken] = strconv.Itoa(end)
		}
	}
	return b, nil
}

func (s *pagedService) tokens(itemType billing.ItemType) []string {
	return s.seen[itemType]
}

// probeHookService runs onProbe before answering the first capability probe.
type probeHookService struct {
	billing.Service

	onProbe func()
	probed  bool
}

func (s *probeHookService) CheckSupport(ctx context.Context, itemType billing.ItemType) (billing.ResponseCode, error) {
	if !s.probed && s.onProbe != nil {
		s.probed = true
		s.onProbe()
	}
	return s.Service.CheckSupport(ctx, itemType)
}
