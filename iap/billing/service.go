package billing

import (
	"context"

	"github.com/code-payments/cashier/iap"
)

// APIVersion is the in-app billing API version this package speaks.
const APIVersion = 3

// MaxSKUsPerRequest bounds the number of SKUs in a single FetchDetails call.
const MaxSKUsPerRequest = 20

// ItemType distinguishes one-time products from subscriptions.
type ItemType string

const (
	ItemTypeInApp        ItemType = "inapp"
	ItemTypeSubscription ItemType = "subs"
)

// ItemTypeOf returns the item type a product is sold as.
func ItemTypeOf(product *iap.Product) ItemType {
	if product.IsSubscription {
		return ItemTypeSubscription
	}
	return ItemTypeInApp
}

// Bundle keys used by the billing service.
const (
	KeyResponseCode      = "RESPONSE_CODE"
	KeyDetailsList       = "DETAILS_LIST"
	KeyBuyIntent         = "BUY_INTENT"
	KeyPurchaseData      = "INAPP_PURCHASE_DATA"
	KeyDataSignature     = "INAPP_DATA_SIGNATURE"
	KeyPurchaseItemList  = "INAPP_PURCHASE_ITEM_LIST"
	KeyPurchaseDataList  = "INAPP_PURCHASE_DATA_LIST"
	KeyDataSignatureList = "INAPP_DATA_SIGNATURE_LIST"
	KeyContinuationToken = "INAPP_CONTINUATION_TOKEN"
	KeyItemIDList        = "ITEM_ID_LIST"
)

// Service is the capability surface of a bound billing service.
//
// Methods returning an error only do so for transport failures. Business
// outcomes are reported through response codes, either directly or under
// KeyResponseCode in the returned Bundle, which may be nil.
type Service interface {
	CheckSupport(ctx context.Context, itemType ItemType) (ResponseCode, error)

	// FetchDetails returns KeyDetailsList, a list of SKU detail JSON strings.
	FetchDetails(ctx context.Context, itemType ItemType, skus []string) (iap.Bundle, error)

	// RequestPurchaseIntent returns a *PendingIntent under KeyBuyIntent.
	RequestPurchaseIntent(ctx context.Context, sku string, itemType ItemType, developerPayload string) (iap.Bundle, error)

	// ListPurchases returns one page of owned items. An empty continuationToken
	// requests the first page; KeyContinuationToken is set when more remain.
	ListPurchases(ctx context.Context, itemType ItemType, continuationToken string) (iap.Bundle, error)

	Consume(ctx context.Context, token string) (ResponseCode, error)
}

// PendingIntent is the external purchase flow handed out by
// RequestPurchaseIntent.
type PendingIntent struct {
	ID               string
	SKU              string
	ItemType         ItemType
	DeveloperPayload string
}

func (p *PendingIntent) IntentID() string {
	return p.ID
}
