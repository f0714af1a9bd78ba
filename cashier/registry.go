package cashier

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/code-payments/cashier/iap"
)

var (
	ErrVendorMissing = errors.New("vendor not registered")
	ErrInvalidVendor = errors.New("invalid vendor id")
)

var validate = validator.New()

// Registry maps vendor ids to the factories that create them.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]iap.Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]iap.Factory),
	}
}

// Register makes factory the source of vendors for id, replacing any previous
// registration.
func (r *Registry) Register(id string, factory iap.Factory) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidVendor)
	}
	if factory == nil {
		return fmt.Errorf("nil factory for vendor %s", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[id] = factory
	return nil
}

func (r *Registry) Factory(id string) (iap.Factory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidVendor)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVendorMissing, id)
	}
	return factory, nil
}

func (r *Registry) vendor(id string) (iap.Vendor, error) {
	factory, err := r.Factory(id)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

// ForInstaller returns a Cashier for the store that installed the app.
func (r *Registry) ForInstaller(host iap.Host, opts ...Option) (*Cashier, error) {
	v, err := r.vendor(host.InstallerPackageName())
	if err != nil {
		return nil, err
	}
	return New(host, v, opts...), nil
}

// ForProduct returns a Cashier for the vendor that sells product.
func (r *Registry) ForProduct(host iap.Host, product *iap.Product, opts ...Option) (*Cashier, error) {
	v, err := r.vendor(product.VendorID)
	if err != nil {
		return nil, err
	}
	return New(host, v, opts...), nil
}

// ForPurchase returns a Cashier for the vendor that sold purchase.
func (r *Registry) ForPurchase(host iap.Host, purchase *iap.Purchase, opts ...Option) (*Cashier, error) {
	if purchase.Product == nil {
		return nil, fmt.Errorf("purchase %s has no product", purchase.Token)
	}
	return r.ForProduct(host, purchase.Product, opts...)
}

type vendorEnvelope struct {
	VendorID *string `json:"vendor-id" validate:"required"`
}

func vendorIDOf(data []byte) (string, error) {
	var envelope vendorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("invalid vendor json: %w", err)
	}
	if err := validate.Struct(&envelope); err != nil {
		return "", fmt.Errorf("invalid vendor json: %w", err)
	}
	return *envelope.VendorID, nil
}

// ProductFromVendor parses a serialized product with the vendor it belongs to.
func (r *Registry) ProductFromVendor(data []byte) (*iap.Product, error) {
	id, err := vendorIDOf(data)
	if err != nil {
		return nil, err
	}
	v, err := r.vendor(id)
	if err != nil {
		return nil, err
	}
	return v.ProductFromJSON(data)
}

// PurchaseFromVendor parses a serialized purchase with the vendor it belongs
// to.
func (r *Registry) PurchaseFromVendor(data []byte) (*iap.Purchase, error) {
	id, err := vendorIDOf(data)
	if err != nil {
		return nil, err
	}
	v, err := r.vendor(id)
	if err != nil {
		return nil, err
	}
	return v.PurchaseFromJSON(data)
}

var defaultRegistry = NewRegistry()

func RegisterVendorFactory(id string, factory iap.Factory) error {
	return defaultRegistry.Register(id, factory)
}

func VendorFactory(id string) (iap.Factory, error) {
	return defaultRegistry.Factory(id)
}

func ForInstaller(host iap.Host, opts ...Option) (*Cashier, error) {
	return defaultRegistry.ForInstaller(host, opts...)
}

func ForProduct(host iap.Host, product *iap.Product, opts ...Option) (*Cashier, error) {
	return defaultRegistry.ForProduct(host, product, opts...)
}

func ForPurchase(host iap.Host, purchase *iap.Purchase, opts ...Option) (*Cashier, error) {
	return defaultRegistry.ForPurchase(host, purchase, opts...)
}

func ProductFromVendor(data []byte) (*iap.Product, error) {
	return defaultRegistry.ProductFromVendor(data)
}

func PurchaseFromVendor(data []byte) (*iap.Purchase, error) {
	return defaultRegistry.PurchaseFromVendor(data)
}
