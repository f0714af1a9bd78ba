package memory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
)

// Checkout plays the store's purchase screen for intent. On success the
// purchase is recorded in the catalog and the returned bundle is what the
// store hands back to the host.
func (c *Catalog) Checkout(intent *billing.PendingIntent) (iap.Bundle, error) {
	p := c.product(intent.SKU, intent.ItemType)
	if p == nil {
		return iap.Bundle{billing.KeyResponseCode: billing.ResponseItemUnavailable}, nil
	}
	if c.owned(p.SKU) {
		return iap.Bundle{billing.KeyResponseCode: billing.ResponseItemAlreadyOwned}, nil
	}

	id := uuid.New()
	data := billing.PurchaseData{
		OrderID:          fmt.Sprintf("GPA.TEST-%s", id),
		PackageName:      c.PackageName,
		ProductID:        p.SKU,
		PurchaseTime:     time.Now().UnixMilli(),
		PurchaseState:    billing.PurchaseStatePurchased,
		DeveloperPayload: intent.DeveloperPayload,
		PurchaseToken:    base58.Encode(id[:]),
		AutoRenewing:     p.IsSubscription,
	}
	receipt, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode purchase data: %w", err)
	}

	c.AddPurchase(&iap.Purchase{
		Product:          p,
		Token:            data.PurchaseToken,
		Receipt:          string(receipt),
		Signature:        testSignature(p.SKU),
		OrderID:          data.OrderID,
		DeveloperPayload: data.DeveloperPayload,
	})

	return iap.Bundle{
		billing.KeyResponseCode:  billing.ResponseOK,
		billing.KeyPurchaseData:  string(receipt),
		billing.KeyDataSignature: testSignature(p.SKU),
	}, nil
}
