package memory

import (
	"fmt"

	"golang.org/x/text/currency"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
)

// Catalog is the fixture the fake billing service resolves requests against:
// the products on sale and the purchases the user already owns.
//
// Catalog is not safe for concurrent use. Seed it before handing the service
// to the code under test.
type Catalog struct {
	// PackageName is reported in generated purchase data.
	PackageName string

	products  []*iap.Product
	purchases []*iap.Purchase
}

func NewCatalog() *Catalog {
	return &Catalog{}
}

// AddProduct adds p, replacing any product with the same SKU and type.
func (c *Catalog) AddProduct(p *iap.Product) error {
	if p.SKU == "" {
		return fmt.Errorf("product has no sku")
	}
	if _, err := currency.ParseISO(p.Currency); err != nil {
		return fmt.Errorf("product %s has invalid currency %q: %w", p.SKU, p.Currency, err)
	}

	for i, existing := range c.products {
		if existing.SKU == p.SKU && existing.IsSubscription == p.IsSubscription {
			c.products[i] = p.Clone()
			return nil
		}
	}
	c.products = append(c.products, p.Clone())
	return nil
}

func (c *Catalog) AddPurchase(p *iap.Purchase) {
	c.purchases = append(c.purchases, p.Clone())
}

func (c *Catalog) Products() []*iap.Product {
	out := make([]*iap.Product, len(c.products))
	for i, p := range c.products {
		out[i] = p.Clone()
	}
	return out
}

func (c *Catalog) Purchases() []*iap.Purchase {
	out := make([]*iap.Purchase, len(c.purchases))
	for i, p := range c.purchases {
		out[i] = p.Clone()
	}
	return out
}

func (c *Catalog) Reset() {
	c.products = nil
	c.purchases = nil
}

func (c *Catalog) product(sku string, itemType billing.ItemType) *iap.Product {
	for _, p := range c.products {
		if p.SKU == sku && billing.ItemTypeOf(p) == itemType {
			return p
		}
	}
	return nil
}

func (c *Catalog) productAnyType(sku string) *iap.Product {
	for _, p := range c.products {
		if p.SKU == sku {
			return p
		}
	}
	return nil
}

func (c *Catalog) owned(sku string) bool {
	for _, p := range c.purchases {
		if p.Product.SKU == sku {
			return true
		}
	}
	return false
}

func (c *Catalog) removePurchase(token string) bool {
	for i, p := range c.purchases {
		if p.Token == token {
			c.purchases = append(c.purchases[:i], c.purchases[i+1:]...)
			return true
		}
	}
	return false
}
