package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-order-relay/core"
)

type stubOrderFetcher struct {
	mu    sync.Mutex
	order core.Order
	err   error
	calls int
}

func (s *stubOrderFetcher) FetchOrder(_ context.Context, orderID string) (core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return core.Order{}, s.err
	}
	return s.order, nil
}

func TestCachedOrderFetcher_MissFetchThenHit(t *testing.T) {
	base := &stubOrderFetcher{order: core.Order{ID: 77, Status: "paid", Tags: []string{"paid"}}}
	fetcher := newTestCachedOrderFetcher(t, base)

	first, err := fetcher.FetchOrder(context.Background(), "77")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := fetcher.FetchOrder(context.Background(), "77")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("expected second fetch to be a cache hit, base calls=%d", base.calls)
	}
	if first.ID != second.ID || second.Status != "paid" {
		t.Fatalf("unexpected cached order %+v", second)
	}

	second.Tags[0] = "mutated"
	third, _ := fetcher.FetchOrder(context.Background(), "77")
	if third.Tags[0] != "paid" {
		t.Fatalf("expected cached order to be isolated from caller mutation")
	}
}

func TestCachedOrderFetcher_ForgetEvicts(t *testing.T) {
	base := &stubOrderFetcher{order: core.Order{ID: 5, Status: "paid"}}
	fetcher := newTestCachedOrderFetcher(t, base)

	if _, err := fetcher.FetchOrder(context.Background(), "5"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := fetcher.Forget(context.Background(), "5"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, err := fetcher.FetchOrder(context.Background(), "5"); err != nil {
		t.Fatalf("fetch after forget: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("expected refetch after forget, base calls=%d", base.calls)
	}
}

func TestCachedOrderFetcher_DoesNotCacheFailures(t *testing.T) {
	base := &stubOrderFetcher{err: errors.New("upstream down")}
	fetcher := newTestCachedOrderFetcher(t, base)

	if _, err := fetcher.FetchOrder(context.Background(), "9"); err == nil {
		t.Fatalf("expected fetch error")
	}
	base.err = nil
	base.order = core.Order{ID: 9, Status: "paid"}
	order, err := fetcher.FetchOrder(context.Background(), "9")
	if err != nil {
		t.Fatalf("fetch after recovery: %v", err)
	}
	if order.ID != 9 || base.calls != 2 {
		t.Fatalf("expected fresh fetch after failure, calls=%d", base.calls)
	}
}

func TestCachedOrderFetcher_UnpaidOrderIsRefetched(t *testing.T) {
	base := &stubOrderFetcher{order: core.Order{ID: 12, Status: "confirmed"}}
	fetcher := newTestCachedOrderFetcher(t, base)

	first, err := fetcher.FetchOrder(context.Background(), "12")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.Status != "confirmed" {
		t.Fatalf("unexpected first status %q", first.Status)
	}

	base.mu.Lock()
	base.order = core.Order{ID: 12, Status: "paid"}
	base.mu.Unlock()
	second, err := fetcher.FetchOrder(context.Background(), "12")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if second.Status != "paid" || base.calls != 2 {
		t.Fatalf("expected fresh paid order, got status=%q calls=%d", second.Status, base.calls)
	}

	if _, err := fetcher.FetchOrder(context.Background(), "12"); err != nil {
		t.Fatalf("third fetch: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("expected paid order to be served from cache, calls=%d", base.calls)
	}
}

func TestOrderCacheKey(t *testing.T) {
	key, err := OrderCacheKey(" 2000003508419013 ")
	if err != nil {
		t.Fatalf("order cache key: %v", err)
	}
	if key != "go-order-relay::order::v1::2000003508419013" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, err := OrderCacheKey(""); err == nil {
		t.Fatalf("expected empty id error")
	}
}

func TestNewOrderCacheService_RequiresTTL(t *testing.T) {
	if _, err := NewOrderCacheService(0); err == nil {
		t.Fatalf("expected ttl error")
	}
}

func newTestCachedOrderFetcher(t *testing.T, base core.OrderFetcher) *CachedOrderFetcher {
	t.Helper()
	service, err := NewOrderCacheService(time.Minute)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	fetcher, err := NewCachedOrderFetcher(base, service)
	if err != nil {
		t.Fatalf("new cached order fetcher: %v", err)
	}
	return fetcher
}
