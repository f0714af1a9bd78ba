package googleplay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
)

var (
	ErrMissingProductID = errors.New("sku details have no product id")
	ErrMissingToken     = errors.New("purchase data has no purchase token")
	ErrProductMismatch  = errors.New("purchase data is for a different product")
)

// ProductFromSkuDetails converts one KeyDetailsList entry into a Product.
func ProductFromSkuDetails(data string, isSubscription bool) (*iap.Product, error) {
	var details billing.SkuDetails
	if err := json.Unmarshal([]byte(data), &details); err != nil {
		return nil, fmt.Errorf("invalid sku details: %w", err)
	}
	if details.ProductID == "" {
		return nil, ErrMissingProductID
	}

	var micros int64
	if details.PriceAmountMicros != "" {
		var err error
		micros, err = details.PriceAmountMicros.Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid price_amount_micros for %s: %w", details.ProductID, err)
		}
	}

	return &iap.Product{
		VendorID:       VendorID,
		SKU:            details.ProductID,
		Price:          details.Price,
		Currency:       details.PriceCurrencyCode,
		Name:           details.Title,
		Description:    details.Description,
		IsSubscription: isSubscription,
		MicrosPrice:    micros,
	}, nil
}

// PurchaseFromPurchaseData builds the Purchase of product described by the
// store's purchase data and signature.
func PurchaseFromPurchaseData(product *iap.Product, data, signature string) (*iap.Purchase, error) {
	var pd billing.PurchaseData
	if err := json.Unmarshal([]byte(data), &pd); err != nil {
		return nil, fmt.Errorf("invalid purchase data: %w", err)
	}
	if pd.PurchaseToken == "" {
		return nil, ErrMissingToken
	}
	if pd.ProductID != "" && pd.ProductID != product.SKU {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrProductMismatch, pd.ProductID, product.SKU)
	}

	return &iap.Purchase{
		Product:          product.Clone(),
		Token:            pd.PurchaseToken,
		Receipt:          data,
		Signature:        signature,
		OrderID:          pd.OrderID,
		DeveloperPayload: pd.DeveloperPayload,
	}, nil
}

// partialPurchase builds a Purchase of product from purchase data that could
// not be read in full, keeping whichever fields were present.
func partialPurchase(product *iap.Product, data, signature string) *iap.Purchase {
	purchase := &iap.Purchase{
		Product:   product.Clone(),
		Receipt:   data,
		Signature: signature,
	}

	var pd billing.PurchaseData
	if err := json.Unmarshal([]byte(data), &pd); err == nil {
		purchase.Token = pd.PurchaseToken
		purchase.OrderID = pd.OrderID
		purchase.DeveloperPayload = pd.DeveloperPayload
	}
	return purchase
}

// placeholderProduct stands in for an owned product whose details the store
// no longer returns.
func placeholderProduct(sku string, isSubscription bool) *iap.Product {
	return &iap.Product{
		VendorID:       VendorID,
		SKU:            sku,
		IsSubscription: isSubscription,
	}
}
