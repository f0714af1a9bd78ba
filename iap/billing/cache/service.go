package cache

import (
	"context"
	"strings"
	"time"

	"github.com/ReneKroon/ttlcache"

	"github.com/code-payments/cashier/iap"
	"github.com/code-payments/cashier/iap/billing"
)

// Cache serves repeated product detail lookups from memory. Only successful
// answers are cached.
type Cache struct {
	svc   billing.Service
	cache *ttlcache.Cache
}

func NewInCache(svc billing.Service, ttl time.Duration) billing.Service {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)
	return &Cache{
		svc:   svc,
		cache: cache,
	}
}

func (c *Cache) CheckSupport(ctx context.Context, itemType billing.ItemType) (billing.ResponseCode, error) {
	return c.svc.CheckSupport(ctx, itemType)
}

func (c *Cache) FetchDetails(ctx context.Context, itemType billing.ItemType, skus []string) (iap.Bundle, error) {
	if skus == nil {
		return c.svc.FetchDetails(ctx, itemType, skus)
	}

	cacheKey := toCacheKey(itemType, skus)

	cached, ok := c.cache.Get(cacheKey)
	if ok {
		return copyBundle(cached.(iap.Bundle)), nil
	}

	b, err := c.svc.FetchDetails(ctx, itemType, skus)
	if err != nil {
		return nil, err
	}

	if code, _, err := billing.ResponseCodeOf(b); err == nil && code == billing.ResponseOK {
		c.cache.Set(cacheKey, copyBundle(b))
	}
	return b, nil
}

func (c *Cache) RequestPurchaseIntent(ctx context.Context, sku string, itemType billing.ItemType, developerPayload string) (iap.Bundle, error) {
	return c.svc.RequestPurchaseIntent(ctx, sku, itemType, developerPayload)
}

func (c *Cache) ListPurchases(ctx context.Context, itemType billing.ItemType, continuationToken string) (iap.Bundle, error) {
	return c.svc.ListPurchases(ctx, itemType, continuationToken)
}

func (c *Cache) Consume(ctx context.Context, token string) (billing.ResponseCode, error) {
	return c.svc.Consume(ctx, token)
}

func toCacheKey(itemType billing.ItemType, skus []string) string {
	return string(itemType) + "\x00" + strings.Join(skus, "\x00")
}

func copyBundle(b iap.Bundle) iap.Bundle {
	if b == nil {
		return nil
	}

	copied := make(iap.Bundle, len(b))
	for k, v := range b {
		if l, ok := v.([]string); ok {
			v = append([]string(nil), l...)
		}
		copied[k] = v
	}
	return copied
}
