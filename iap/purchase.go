package iap

import (
	"encoding/json"
	"fmt"
)

const (
	KeyToken            = "token"
	KeyReceipt          = "receipt"
	KeySignature        = "signature"
	KeyOrderID          = "order-id"
	KeyDeveloperPayload = "developer-payload"
)

// Purchase associates a Product with the vendor issued token and the raw
// receipt the vendor returned for it.
type Purchase struct {
	Product *Product

	// Token is the opaque, vendor issued purchase token used to consume.
	Token string

	// Receipt is the serialized purchase data as received from the vendor.
	Receipt string

	Signature        string
	OrderID          string
	DeveloperPayload string
}

type purchaseJSON struct {
	productJSON

	Token            *string `json:"token" validate:"required"`
	Receipt          *string `json:"receipt" validate:"required"`
	Signature        string  `json:"signature,omitempty"`
	OrderID          string  `json:"order-id,omitempty"`
	DeveloperPayload string  `json:"developer-payload,omitempty"`
}

// PurchaseFromJSON reconstructs a Purchase serialized with Purchase.JSON.
func PurchaseFromJSON(data []byte) (*Purchase, error) {
	var raw purchaseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid purchase json: %w", err)
	}
	if err := validate.Struct(&raw); err != nil {
		return nil, fmt.Errorf("invalid purchase json: %w", err)
	}

	return &Purchase{
		Product:          raw.product(),
		Token:            *raw.Token,
		Receipt:          *raw.Receipt,
		Signature:        raw.Signature,
		OrderID:          raw.OrderID,
		DeveloperPayload: raw.DeveloperPayload,
	}, nil
}

func (p *Purchase) JSON() ([]byte, error) {
	if p.Product == nil {
		return nil, fmt.Errorf("purchase %s has no product", p.Token)
	}
	return json.Marshal(purchaseJSON{
		productJSON:      p.Product.wire(),
		Token:            &p.Token,
		Receipt:          &p.Receipt,
		Signature:        p.Signature,
		OrderID:          p.OrderID,
		DeveloperPayload: p.DeveloperPayload,
	})
}

// CanConsume is false for subscriptions, which can never be consumed.
func (p *Purchase) CanConsume() bool {
	return p.Product != nil && !p.Product.IsSubscription
}

func (p *Purchase) Clone() *Purchase {
	if p == nil {
		return nil
	}
	cloned := *p
	cloned.Product = p.Product.Clone()
	return &cloned
}
