package billing

import "encoding/json"

// SkuDetails is one entry of KeyDetailsList.
type SkuDetails struct {
	ProductID         string      `json:"productId"`
	Type              ItemType    `json:"type,omitempty"`
	Price             string      `json:"price"`
	PriceCurrencyCode string      `json:"price_currency_code"`
	PriceAmountMicros json.Number `json:"price_amount_micros"`
	Title             string      `json:"title"`
	Description       string      `json:"description"`
}

// PurchaseState as reported in PurchaseData.
type PurchaseState int

const (
	PurchaseStatePurchased PurchaseState = 0
	PurchaseStateCanceled  PurchaseState = 1
	PurchaseStateRefunded  PurchaseState = 2
)

// PurchaseData is the receipt carried under KeyPurchaseData and
// KeyPurchaseDataList.
type PurchaseData struct {
	OrderID          string        `json:"orderId,omitempty"`
	PackageName      string        `json:"packageName,omitempty"`
	ProductID        string        `json:"productId"`
	PurchaseTime     int64         `json:"purchaseTime"`
	PurchaseState    PurchaseState `json:"purchaseState"`
	DeveloperPayload string        `json:"developerPayload,omitempty"`
	PurchaseToken    string        `json:"purchaseToken"`
	AutoRenewing     bool          `json:"autoRenewing,omitempty"`
}
