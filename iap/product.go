package iap

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Serialized field names shared by every vendor.
const (
	KeyVendorID    = "vendor-id"
	KeySKU         = "sku"
	KeyPrice       = "price"
	KeyCurrency    = "currency"
	KeyName        = "name"
	KeyDescription = "description"
	KeyIsSub       = "subscription"
	KeyMicrosPrice = "micros-price"
)

var validate = validator.New()

// Product is an immutable description of something a vendor sells.
type Product struct {
	VendorID       string
	SKU            string
	Price          string // vendor formatted, e.g. "$3.00"
	Currency       string // ISO 4217
	Name           string
	Description    string
	IsSubscription bool
	MicrosPrice    int64
}

type productJSON struct {
	VendorID       *string `json:"vendor-id" validate:"required"`
	SKU            *string `json:"sku" validate:"required"`
	Price          *string `json:"price" validate:"required"`
	Currency       *string `json:"currency" validate:"required"`
	Name           *string `json:"name" validate:"required"`
	Description    *string `json:"description" validate:"required"`
	IsSubscription *bool   `json:"subscription" validate:"required"`
	MicrosPrice    *int64  `json:"micros-price" validate:"required"`
}

// ProductFromJSON reconstructs a Product serialized with Product.JSON. Every
// field must be present.
func ProductFromJSON(data []byte) (*Product, error) {
	var raw productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid product json: %w", err)
	}
	if err := validate.Struct(&raw); err != nil {
		return nil, fmt.Errorf("invalid product json: %w", err)
	}
	return raw.product(), nil
}

func (r *productJSON) product() *Product {
	return &Product{
		VendorID:       *r.VendorID,
		SKU:            *r.SKU,
		Price:          *r.Price,
		Currency:       *r.Currency,
		Name:           *r.Name,
		Description:    *r.Description,
		IsSubscription: *r.IsSubscription,
		MicrosPrice:    *r.MicrosPrice,
	}
}

func (p *Product) wire() productJSON {
	return productJSON{
		VendorID:       &p.VendorID,
		SKU:            &p.SKU,
		Price:          &p.Price,
		Currency:       &p.Currency,
		Name:           &p.Name,
		Description:    &p.Description,
		IsSubscription: &p.IsSubscription,
		MicrosPrice:    &p.MicrosPrice,
	}
}

func (p *Product) JSON() ([]byte, error) {
	return json.Marshal(p.wire())
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cloned := *p
	return &cloned
}

// PriceDecimal returns the exact price in currency units.
func (p *Product) PriceDecimal() decimal.Decimal {
	return decimal.New(p.MicrosPrice, -6)
}

// FormatPrice renders the micros price with the currency symbol for the given
// locale. It falls back to the vendor formatted price when the currency code
// is not a known ISO code.
func (p *Product) FormatPrice(tag language.Tag) string {
	unit, err := currency.ParseISO(p.Currency)
	if err != nil {
		return p.Price
	}
	amount, _ := p.PriceDecimal().Float64()
	return message.NewPrinter(tag).Sprint(currency.Symbol(unit.Amount(amount)))
}

func (p *Product) String() string {
	return fmt.Sprintf("%s/%s (%s %s, subscription=%t)", p.VendorID, p.SKU, p.Price, p.Currency, p.IsSubscription)
}
