package memory

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
)

// Service is an in-process billing.Service that resolves every request
// synchronously against a Catalog.
type Service struct {
	catalog     *Catalog
	unsupported map[billing.ItemType]bool
}

type Option func(*Service)

// WithUnsupported makes CheckSupport report billing unavailable for the given
// item types. By default everything is supported.
func WithUnsupported(types ...billing.ItemType) Option {
	return func(s *Service) {
		for _, t := range types {
			s.unsupported[t] = true
		}
	}
}

func NewService(catalog *Catalog, opts ...Option) *Service {
	s := &Service{
		catalog:     catalog,
		unsupported: map[billing.ItemType]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CheckSupport(_ context.Context, itemType billing.ItemType) (billing.ResponseCode, error) {
	if s.unsupported[itemType] {
		return billing.ResponseBillingUnavailable, nil
	}
	return billing.ResponseOK, nil
}

func (s *Service) FetchDetails(_ context.Context, itemType billing.ItemType, skus []string) (iap.Bundle, error) {
	if skus == nil || len(skus) > billing.MaxSKUsPerRequest {
		return iap.Bundle{billing.KeyResponseCode: billing.ResponseDeveloperError}, nil
	}

	details := make([]string, 0, len(skus))
	for _, sku := range skus {
		p := s.catalog.product(sku, itemType)
		if p == nil {
			continue
		}

		encoded, err := json.Marshal(SkuDetailsOf(p))
		if err != nil {
			// Only string and number fields, so this cannot fail.
			panic(err)
		}
		details = append(details, string(encoded))
	}

	code := billing.ResponseOK
	if len(details) != len(skus) {
		code = billing.ResponseDeveloperError
	}

	return iap.Bundle{
		billing.KeyResponseCode: code,
		billing.KeyDetailsList:  details,
	}, nil
}

func (s *Service) RequestPurchaseIntent(_ context.Context, sku string, itemType billing.ItemType, developerPayload string) (iap.Bundle, error) {
	p := s.catalog.productAnyType(sku)
	if p == nil {
		return iap.Bundle{billing.KeyResponseCode: billing.ResponseItemUnavailable}, nil
	}

	// Can't buy the same thing twice.
	if s.catalog.owned(sku) {
		return iap.Bundle{billing.KeyResponseCode: billing.ResponseItemAlreadyOwned}, nil
	}

	return iap.Bundle{
		billing.KeyResponseCode: billing.ResponseOK,
		billing.KeyBuyIntent: &billing.PendingIntent{
			ID:               uuid.NewString(),
			SKU:              p.SKU,
			ItemType:         billing.ItemTypeOf(p),
			DeveloperPayload: developerPayload,
		},
	}, nil
}

func (s *Service) ListPurchases(_ context.Context, itemType billing.ItemType, _ string) (iap.Bundle, error) {
	var skus, data, signatures []string
	for _, p := range s.catalog.purchases {
		if billing.ItemTypeOf(p.Product) != itemType {
			continue
		}
		skus = append(skus, p.Product.SKU)
		data = append(data, p.Receipt)
		signatures = append(signatures, testSignature(p.Product.SKU))
	}

	return iap.Bundle{
		billing.KeyResponseCode:      billing.ResponseOK,
		billing.KeyPurchaseItemList:  nonNil(skus),
		billing.KeyPurchaseDataList:  nonNil(data),
		billing.KeyDataSignatureList: nonNil(signatures),
	}, nil
}

func (s *Service) Consume(_ context.Context, token string) (billing.ResponseCode, error) {
	if s.catalog.removePurchase(token) {
		return billing.ResponseOK, nil
	}
	return billing.ResponseItemNotOwned, nil
}

// SkuDetailsOf renders p the way the billing service describes products.
func SkuDetailsOf(p *iap.Product) billing.SkuDetails {
	return billing.SkuDetails{
		ProductID:         p.SKU,
		Type:              billing.ItemTypeOf(p),
		Price:             p.Price,
		PriceCurrencyCode: p.Currency,
		PriceAmountMicros: json.Number(strconv.FormatInt(p.MicrosPrice, 10)),
		Title:             p.Name,
		Description:       p.Description,
	}
}

func testSignature(sku string) string {
	return "TEST-DATA-SIGNATURE-" + sku
}

func nonNil(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}
