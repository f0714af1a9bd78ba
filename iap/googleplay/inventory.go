package googleplay

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
)

// maxInventoryPages bounds continuation token paging against a misbehaving
// service.
const maxInventoryPages = 100

type inventoryError struct {
	code billing.ResponseCode
	err  error
}

func (e *inventoryError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.code, e.err)
	}
	return e.code.String()
}

func (v *Vendor) GetInventory(ctx context.Context, _ iap.Host, itemSKUs, subSKUs []string, listener iap.InventoryListener) {
	if listener == nil {
		panic("googleplay: nil inventory listener")
	}

	svc, log, ok := v.connected()
	if !ok {
		listener.Failure(iap.NewError(iap.OpInventory, iap.CodeUnavailable, iap.NoVendorCode))
		return
	}

	v.mu.Lock()
	canPurchaseItems, canSubscribe := v.canPurchaseItems, v.canSubscribe
	v.mu.Unlock()

	inventory := &iap.Inventory{}
	queries := []struct {
		itemType billing.ItemType
		enabled  bool
		skus     []string
	}{
		{billing.ItemTypeInApp, canPurchaseItems, itemSKUs},
		{billing.ItemTypeSubscription, canSubscribe, subSKUs},
	}

	for _, q := range queries {
		if !q.enabled {
			continue
		}

		if err := v.collectInventory(ctx, svc, log, q.itemType, q.skus, inventory); err != nil {
			log.Warn("Failed to load inventory", zap.String("item_type", string(q.itemType)), zap.Error(err))
			listener.Failure(billing.NewError(iap.OpInventory, err.code))
			return
		}
	}

	log.Debug("Loaded inventory",
		zap.Int("purchases", len(inventory.Purchases)),
		zap.Int("products", len(inventory.Products)),
	)
	listener.Success(inventory)
}

func (v *Vendor) collectInventory(
	ctx context.Context,
	svc billing.Service,
	log *zap.Logger,
	itemType billing.ItemType,
	requested []string,
	inventory *iap.Inventory,
) *inventoryError {
	isSubscription := itemType == billing.ItemTypeSubscription

	type owned struct {
		sku, data, signature string
	}
	var purchases []owned

	var continuationToken string
	for page := 0; ; page++ {
		if page >= maxInventoryPages {
			return &inventoryError{code: billing.ResponseError, err: fmt.Errorf("more than %d purchase pages", maxInventoryPages)}
		}

		b, err := svc.ListPurchases(ctx, itemType, continuationToken)
		if err != nil {
			return &inventoryError{code: billing.ResponseError, err: err}
		}
		if code := v.responseCode(log, b); code != billing.ResponseOK {
			return &inventoryError{code: code}
		}

		skus, err := billing.StringList(b, billing.KeyPurchaseItemList)
		if err != nil {
			return &inventoryError{code: billing.ResponseError, err: err}
		}
		data, err := billing.StringList(b, billing.KeyPurchaseDataList)
		if err != nil {
			return &inventoryError{code: billing.ResponseError, err: err}
		}
		signatures, err := billing.StringList(b, billing.KeyDataSignatureList)
		if err != nil {
			return &inventoryError{code: billing.ResponseError, err: err}
		}
		if len(data) != len(skus) {
			return &inventoryError{code: billing.ResponseError, err: fmt.Errorf("%d skus but %d purchases", len(skus), len(data))}
		}

		for i, sku := range skus {
			var signature string
			if i < len(signatures) {
				signature = signatures[i]
			}
			purchases = append(purchases, owned{sku: sku, data: data[i], signature: signature})
		}

		continuationToken = billing.String(b, billing.KeyContinuationToken)
		if continuationToken == "" {
			break
		}
	}

	seen := make(map[string]struct{})
	var lookup []string
	for _, sku := range requested {
		if _, ok := seen[sku]; ok {
			continue
		}
		seen[sku] = struct{}{}
		lookup = append(lookup, sku)
	}
	ownedOnly := make(map[string]struct{})
	for _, p := range purchases {
		if _, ok := seen[p.sku]; ok {
			continue
		}
		seen[p.sku] = struct{}{}
		ownedOnly[p.sku] = struct{}{}
		lookup = append(lookup, p.sku)
	}

	products, ierr := v.fetchProducts(ctx, svc, log, itemType, lookup, ownedOnly)
	if ierr != nil {
		return ierr
	}

	for _, p := range purchases {
		product, ok := products[p.sku]
		if !ok {
			log.Debug("No details for owned product", zap.String("sku", p.sku))
			product = placeholderProduct(p.sku, isSubscription)
		}

		purchase, err := PurchaseFromPurchaseData(product, p.data, p.signature)
		if err != nil {
			log.Warn("Skipping unreadable purchase", zap.String("sku", p.sku), zap.Error(err))
			continue
		}
		inventory.AddPurchase(purchase)
	}

	for _, sku := range requested {
		if product, ok := products[sku]; ok {
			if _, dup := inventory.Product(sku); !dup {
				inventory.AddProduct(product)
			}
		}
	}

	return nil
}

// fetchProducts looks up skus in batches the service accepts. A batch made
// up only of optional skus may come back empty; those fall back to
// placeholders.
func (v *Vendor) fetchProducts(
	ctx context.Context,
	svc billing.Service,
	log *zap.Logger,
	itemType billing.ItemType,
	skus []string,
	optional map[string]struct{},
) (map[string]*iap.Product, *inventoryError) {
	isSubscription := itemType == billing.ItemTypeSubscription
	products := make(map[string]*iap.Product, len(skus))

	for start := 0; start < len(skus); start += billing.MaxSKUsPerRequest {
		end := min(start+billing.MaxSKUsPerRequest, len(skus))

		b, err := svc.FetchDetails(ctx, itemType, skus[start:end])
		if err != nil {
			return nil, &inventoryError{code: billing.ResponseError, err: err}
		}

		details, err := billing.StringList(b, billing.KeyDetailsList)
		if err != nil {
			return nil, &inventoryError{code: billing.ResponseError, err: err}
		}

		// A partial answer still carries the products the store knows about.
		if code := v.responseCode(log, b); code != billing.ResponseOK && len(details) == 0 {
			if !allOptional(skus[start:end], optional) {
				return nil, &inventoryError{code: code}
			}
			log.Debug("No details for owned products", zap.Strings("skus", skus[start:end]), zap.Stringer("code", code))
			continue
		}

		for _, d := range details {
			product, err := ProductFromSkuDetails(d, isSubscription)
			if err != nil {
				log.Warn("Skipping unreadable sku details", zap.Error(err))
				continue
			}
			products[product.SKU] = product
		}
	}

	return products, nil
}

func allOptional(skus []string, optional map[string]struct{}) bool {
	for _, sku := range skus {
		if _, ok := optional[sku]; !ok {
			return false
		}
	}
	return true
}

func (v *Vendor) GetProductDetails(ctx context.Context, _ iap.Host, sku string, isSubscription bool, listener iap.ProductDetailsListener) {
	if listener == nil {
		panic("googleplay: nil product details listener")
	}

	svc, log, ok := v.connected()
	if !ok {
		listener.Failure(iap.NewError(iap.OpProductDetails, iap.CodeUnavailable, iap.NoVendorCode))
		return
	}
	log = log.With(zap.String("sku", sku))

	itemType := billing.ItemTypeInApp
	if isSubscription {
		itemType = billing.ItemTypeSubscription
	}

	b, err := svc.FetchDetails(ctx, itemType, []string{sku})
	if err != nil {
		log.Warn("Failed to fetch product details", zap.Error(err))
		listener.Failure(billing.NewError(iap.OpProductDetails, billing.ResponseError))
		return
	}
	if code := v.responseCode(log, b); code != billing.ResponseOK {
		log.Debug("Couldn't fetch product details", zap.Stringer("code", code))
		listener.Failure(billing.NewError(iap.OpProductDetails, code))
		return
	}

	details, err := billing.StringList(b, billing.KeyDetailsList)
	if err != nil {
		log.Warn("Unexpected details list", zap.Error(err))
		listener.Failure(billing.NewError(iap.OpProductDetails, billing.ResponseError))
		return
	}

	for _, d := range details {
		product, err := ProductFromSkuDetails(d, isSubscription)
		if err != nil {
			log.Warn("Skipping unreadable sku details", zap.Error(err))
			continue
		}
		if product.SKU == sku {
			listener.Success(product)
			return
		}
	}

	log.Debug("Product not found")
	listener.Failure(iap.NewError(iap.OpProductDetails, iap.CodeUnavailable, iap.NoVendorCode))
}
