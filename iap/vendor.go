package iap

import (
	"context"

	"go.uber.org/zap"
)

// Bundle is a loosely typed payload as produced by vendor backends and
// external purchase flows. A nil Bundle is distinct from an empty one.
type Bundle map[string]any

// ResultCode is what the host reports for a finished external flow.
type ResultCode int

const (
	ResultCanceled ResultCode = 0
	ResultOK       ResultCode = -1
)

// Intent is an opaque, vendor provided external flow that the host launches
// on the vendor's behalf.
type Intent interface {
	IntentID() string
}

// Host is the application context a checkout flow runs in.
type Host interface {
	// StartIntentForResult launches intent. The host must forward the result
	// to Vendor.OnActivityResult together with requestCode.
	StartIntentForResult(intent Intent, requestCode int) error

	// InstallerPackageName identifies the store that installed the app.
	InstallerPackageName() string
}

// Vendor is implemented by every store specific purchase adapter.
type Vendor interface {
	ID() string

	// Initialize prepares the vendor for use. It is idempotent; listener is
	// always notified exactly once per call.
	Initialize(ctx context.Context, host Host, listener InitializationListener)

	Dispose(host Host)

	// Purchase starts a purchase flow. It panics if the vendor is not
	// initialized or CanPurchase(product) is false.
	Purchase(ctx context.Context, host Host, product *Product, developerPayload string, listener PurchaseListener)

	// Consume consumes a one-time purchase. It panics for subscriptions.
	Consume(ctx context.Context, host Host, purchase *Purchase, listener ConsumeListener)

	GetInventory(ctx context.Context, host Host, itemSKUs, subSKUs []string, listener InventoryListener)
	GetProductDetails(ctx context.Context, host Host, sku string, isSubscription bool, listener ProductDetailsListener)

	Available() bool
	CanPurchase(product *Product) bool

	// OnActivityResult returns false when requestCode does not belong to this
	// vendor, so hosts may forward every result.
	OnActivityResult(requestCode int, resultCode ResultCode, data Bundle) bool

	ProductFromJSON(data []byte) (*Product, error)
	PurchaseFromJSON(data []byte) (*Purchase, error)

	SetLogger(log *zap.Logger)
}

// Factory creates a new Vendor instance.
type Factory func() Vendor

type InitializationListener interface {
	Initialized()
	Unavailable()
}

type PurchaseListener interface {
	Success(purchase *Purchase)
	Failure(product *Product, err *Error)
}

type ConsumeListener interface {
	Success(purchase *Purchase)
	Failure(purchase *Purchase, err *Error)
}

type InventoryListener interface {
	Success(inventory *Inventory)
	Failure(err *Error)
}

type ProductDetailsListener interface {
	Success(product *Product)
	Failure(err *Error)
}

// InitializationCallbacks adapts a pair of functions to an
// InitializationListener. Nil functions are skipped.
type InitializationCallbacks struct {
	OnInitialized func()
	OnUnavailable func()
}

func (c InitializationCallbacks) Initialized() {
	if c.OnInitialized != nil {
		c.OnInitialized()
	}
}

func (c InitializationCallbacks) Unavailable() {
	if c.OnUnavailable != nil {
		c.OnUnavailable()
	}
}

type PurchaseCallbacks struct {
	OnSuccess func(*Purchase)
	OnFailure func(*Product, *Error)
}

func (c PurchaseCallbacks) Success(purchase *Purchase) {
	if c.OnSuccess != nil {
		c.OnSuccess(purchase)
	}
}

func (c PurchaseCallbacks) Failure(product *Product, err *Error) {
	if c.OnFailure != nil {
		c.OnFailure(product, err)
	}
}

type ConsumeCallbacks struct {
	OnSuccess func(*Purchase)
	OnFailure func(*Purchase, *Error)
}

func (c ConsumeCallbacks) Success(purchase *Purchase) {
	if c.OnSuccess != nil {
		c.OnSuccess(purchase)
	}
}

func (c ConsumeCallbacks) Failure(purchase *Purchase, err *Error) {
	if c.OnFailure != nil {
		c.OnFailure(purchase, err)
	}
}

type InventoryCallbacks struct {
	OnSuccess func(*Inventory)
	OnFailure func(*Error)
}

func (c InventoryCallbacks) Success(inventory *Inventory) {
	if c.OnSuccess != nil {
		c.OnSuccess(inventory)
	}
}

func (c InventoryCallbacks) Failure(err *Error) {
	if c.OnFailure != nil {
		c.OnFailure(err)
	}
}

type ProductDetailsCallbacks struct {
	OnSuccess func(*Product)
	OnFailure func(*Error)
}

func (c ProductDetailsCallbacks) Success(product *Product) {
	if c.OnSuccess != nil {
		c.OnSuccess(product)
	}
}

func (c ProductDetailsCallbacks) Failure(err *Error) {
	if c.OnFailure != nil {
		c.OnFailure(err)
	}
}
