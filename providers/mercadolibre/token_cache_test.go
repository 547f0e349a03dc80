package mercadolibre

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-order-relay/core"
)

func TestTokenCache_ReusesTokenUntilMargin(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	refresher := &stubRefresher{ttl: 10 * time.Minute, now: func() time.Time { return now }}
	cache, err := NewTokenCache(refresher, "TG-0", WithRefreshMargin(time.Minute), WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new token cache: %v", err)
	}

	first, err := cache.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("first access token: %v", err)
	}
	now = now.Add(8 * time.Minute)
	second, err := cache.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("second access token: %v", err)
	}
	if first != second || refresher.calls != 1 {
		t.Fatalf("expected cached token reuse, calls=%d", refresher.calls)
	}

	now = now.Add(90 * time.Second)
	third, err := cache.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("third access token: %v", err)
	}
	if third == second || refresher.calls != 2 {
		t.Fatalf("expected refresh inside margin, calls=%d", refresher.calls)
	}
	if refresher.seen[1] != "TG-1" {
		t.Fatalf("expected rotated refresh token to be used, got %q", refresher.seen[1])
	}
}

func TestTokenCache_InvalidateForcesRefresh(t *testing.T) {
	refresher := &stubRefresher{ttl: time.Hour}
	cache, _ := NewTokenCache(refresher, "TG-0")
	if _, err := cache.AccessToken(context.Background()); err != nil {
		t.Fatalf("access token: %v", err)
	}
	cache.Invalidate()
	if _, err := cache.AccessToken(context.Background()); err != nil {
		t.Fatalf("access token after invalidate: %v", err)
	}
	if refresher.calls != 2 {
		t.Fatalf("expected refresh after invalidate, calls=%d", refresher.calls)
	}
}

func TestTokenCache_WrapsRefreshFailureAsAuthError(t *testing.T) {
	cache, _ := NewTokenCache(&stubRefresher{err: errors.New("invalid_grant")}, "TG-0")
	_, err := cache.AccessToken(context.Background())
	if err == nil {
		t.Fatalf("expected refresh error")
	}
	if !core.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if cache.Credential().RefreshToken != "TG-0" {
		t.Fatalf("expected refresh token to survive failed exchange")
	}
}

func TestTokenCache_SerializesConcurrentRefresh(t *testing.T) {
	refresher := &stubRefresher{ttl: time.Hour}
	cache, _ := NewTokenCache(refresher, "TG-0")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.AccessToken(context.Background()); err != nil {
				t.Errorf("access token: %v", err)
			}
		}()
	}
	wg.Wait()
	if refresher.calls != 1 {
		t.Fatalf("expected a single exchange, got %d", refresher.calls)
	}
}

type stubRefresher struct {
	mu    sync.Mutex
	ttl   time.Duration
	err   error
	now   func() time.Time
	calls int
	seen  []string
}

func (r *stubRefresher) Refresh(_ context.Context, cred core.ActiveCredential) (core.ActiveCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.seen = append(r.seen, cred.RefreshToken)
	if r.err != nil {
		return core.ActiveCredential{}, r.err
	}
	now := time.Now().UTC()
	if r.now != nil {
		now = r.now()
	}
	expiresAt := now.Add(r.ttl)
	cred.AccessToken = fmt.Sprintf("access-%d", r.calls)
	cred.RefreshToken = fmt.Sprintf("TG-%d", r.calls)
	cred.ExpiresAt = &expiresAt
	cred.Refreshable = true
	return cred, nil
}
