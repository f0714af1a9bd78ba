package cashier

import (
	"context"

	"go.uber.org/zap"

	"github.com/code-payments/cashier/iap"
)

// Cashier runs purchase flows against a single vendor on behalf of one host.
// Every operation initializes the vendor first, and reports an unavailable
// vendor as iap.CodeUnavailable.
type Cashier struct {
	host   iap.Host
	vendor iap.Vendor
	log    *zap.Logger
}

type options struct {
	log *zap.Logger
}

type Option func(*options)

// WithLogger sets the logger used by the Cashier and its vendor.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func New(host iap.Host, vendor iap.Vendor, opts ...Option) *Cashier {
	if host == nil || vendor == nil {
		panic("cashier: nil host or vendor")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := zap.NewNop()
	if o.log != nil {
		log = o.log
		vendor.SetLogger(o.log)
	}

	return &Cashier{
		host:   host,
		vendor: vendor,
		log:    log.With(zap.String("vendor_id", vendor.ID())),
	}
}

func (c *Cashier) Purchase(ctx context.Context, product *iap.Product, developerPayload string, listener iap.PurchaseListener) {
	log := c.log.With(zap.String("sku", product.SKU))

	c.vendor.Initialize(ctx, c.host, iap.InitializationCallbacks{
		OnInitialized: func() {
			if !c.vendor.Available() || !c.vendor.CanPurchase(product) {
				log.Debug("Vendor cannot sell product")
				listener.Failure(product, unavailable(iap.OpPurchase))
				return
			}
			c.vendor.Purchase(ctx, c.host, product, developerPayload, listener)
		},
		OnUnavailable: func() {
			log.Debug("Vendor unavailable for purchase")
			listener.Failure(product, unavailable(iap.OpPurchase))
		},
	})
}

// Consume consumes a one-time purchase. It panics for subscriptions.
func (c *Cashier) Consume(ctx context.Context, purchase *iap.Purchase, listener iap.ConsumeListener) {
	if !purchase.CanConsume() {
		panic("cashier: cannot consume a subscription")
	}

	c.vendor.Initialize(ctx, c.host, iap.InitializationCallbacks{
		OnInitialized: func() {
			c.vendor.Consume(ctx, c.host, purchase, listener)
		},
		OnUnavailable: func() {
			c.log.Debug("Vendor unavailable for consume", zap.String("sku", purchase.Product.SKU))
			listener.Failure(purchase, unavailable(iap.OpConsume))
		},
	})
}

// GetInventory reports what the user owns, along with the details of the
// requested products. Both sku lists may be nil.
func (c *Cashier) GetInventory(ctx context.Context, itemSKUs, subSKUs []string, listener iap.InventoryListener) {
	c.vendor.Initialize(ctx, c.host, iap.InitializationCallbacks{
		OnInitialized: func() {
			c.vendor.GetInventory(ctx, c.host, itemSKUs, subSKUs, listener)
		},
		OnUnavailable: func() {
			c.log.Debug("Vendor unavailable for inventory")
			listener.Failure(unavailable(iap.OpInventory))
		},
	})
}

func (c *Cashier) GetProductDetails(ctx context.Context, sku string, isSubscription bool, listener iap.ProductDetailsListener) {
	c.vendor.Initialize(ctx, c.host, iap.InitializationCallbacks{
		OnInitialized: func() {
			c.vendor.GetProductDetails(ctx, c.host, sku, isSubscription, listener)
		},
		OnUnavailable: func() {
			c.log.Debug("Vendor unavailable for product details", zap.String("sku", sku))
			listener.Failure(unavailable(iap.OpProductDetails))
		},
	})
}

func (c *Cashier) VendorID() string {
	return c.vendor.ID()
}

func (c *Cashier) Dispose() {
	c.vendor.Dispose(c.host)
}

// OnActivityResult forwards the result of an external flow. Hosts may forward
// every result; false means it was not started by this Cashier's vendor.
func (c *Cashier) OnActivityResult(requestCode int, resultCode iap.ResultCode, data iap.Bundle) bool {
	return c.vendor.OnActivityResult(requestCode, resultCode, data)
}

func unavailable(op iap.Op) *iap.Error {
	return iap.NewError(op, iap.CodeUnavailable, iap.NoVendorCode)
}
