package cache

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-order-relay/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const orderCacheKeyPrefix = "go-order-relay::order::v1"

// CachedOrderFetcher collapses repeated lookups of one paid order inside the cache TTL.
// Failed lookups and orders that are not yet paid are not cached.
type CachedOrderFetcher struct {
	base  core.OrderFetcher
	cache repositorycache.CacheService
}

func NewCachedOrderFetcher(base core.OrderFetcher, cacheService repositorycache.CacheService) (*CachedOrderFetcher, error) {
	if base == nil {
		return nil, fmt.Errorf("cache: base order fetcher is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("cache: order cache service is required")
	}
	return &CachedOrderFetcher{base: base, cache: cacheService}, nil
}

// NewOrderCacheService builds a cache service whose entries live for ttl.
func NewOrderCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache: order cache ttl must be positive")
	}
	config := repositorycache.DefaultConfig()
	config.TTL = ttl
	return repositorycache.NewCacheService(config)
}

// OrderCacheKey returns go-order-relay::order::v1::<order_id> with the id path-escaped.
func OrderCacheKey(orderID string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", fmt.Errorf("cache: order id is required")
	}
	return orderCacheKeyPrefix + "::" + url.PathEscape(orderID), nil
}

func (f *CachedOrderFetcher) FetchOrder(ctx context.Context, orderID string) (core.Order, error) {
	if f == nil || f.base == nil || f.cache == nil {
		return core.Order{}, fmt.Errorf("cache: cached order fetcher is not configured")
	}
	cacheKey, err := OrderCacheKey(orderID)
	if err != nil {
		return core.Order{}, core.NewFetchError(err, "cache: invalid order id", nil)
	}
	order, err := repositorycache.GetOrFetch(ctx, f.cache, cacheKey, func(ctx context.Context) (core.Order, error) {
		return f.base.FetchOrder(ctx, strings.TrimSpace(orderID))
	})
	if err != nil {
		return core.Order{}, err
	}
	if !core.IsPaidSale(order) {
		// Only paid sales stay cached.
		if err := f.cache.Delete(ctx, cacheKey); err != nil {
			return core.Order{}, core.NewFetchError(err, "cache: evict unpaid order", map[string]any{"order_id": orderID})
		}
	}
	return cloneOrder(order), nil
}

// Forget drops a cached order so the next lookup reaches the marketplace.
func (f *CachedOrderFetcher) Forget(ctx context.Context, orderID string) error {
	if f == nil || f.cache == nil {
		return nil
	}
	cacheKey, err := OrderCacheKey(orderID)
	if err != nil {
		return err
	}
	return f.cache.Delete(ctx, cacheKey)
}

func cloneOrder(order core.Order) core.Order {
	cloned := order
	cloned.Tags = append([]string(nil), order.Tags...)
	cloned.InternalTags = append([]string(nil), order.InternalTags...)
	cloned.Payments = append([]core.Payment(nil), order.Payments...)
	if order.Buyer != nil {
		buyer := *order.Buyer
		cloned.Buyer = &buyer
	}
	if order.Seller != nil {
		seller := *order.Seller
		cloned.Seller = &seller
	}
	if order.Fulfilled != nil {
		fulfilled := *order.Fulfilled
		cloned.Fulfilled = &fulfilled
	}
	return cloned
}

var _ core.OrderFetcher = (*CachedOrderFetcher)(nil)
var _ core.OrderCacheInvalidator = (*CachedOrderFetcher)(nil)
