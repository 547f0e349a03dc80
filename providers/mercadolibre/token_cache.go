package mercadolibre

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-order-relay/core"
)

type CredentialRefresher interface {
	Refresh(ctx context.Context, cred core.ActiveCredential) (core.ActiveCredential, error)
}

// TokenCache hands out the current access token and refreshes it lazily once it is
// missing or inside the refresh margin. Refreshes are serialized: the marketplace
// invalidates a refresh token as soon as it has been used.
type TokenCache struct {
	refresher CredentialRefresher
	margin    time.Duration
	now       func() time.Time

	mu         sync.Mutex
	credential core.ActiveCredential
}

type TokenCacheOption func(*TokenCache)

func WithRefreshMargin(margin time.Duration) TokenCacheOption {
	return func(c *TokenCache) {
		if margin > 0 {
			c.margin = margin
		}
	}
}

func WithTokenClock(now func() time.Time) TokenCacheOption {
	return func(c *TokenCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewTokenCache(refresher CredentialRefresher, refreshToken string, opts ...TokenCacheOption) (*TokenCache, error) {
	if refresher == nil {
		return nil, fmt.Errorf("mercadolibre: credential refresher is required")
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, fmt.Errorf("mercadolibre: refresh token is required")
	}
	cache := &TokenCache{
		refresher: refresher,
		margin:    core.DefaultTokenRefreshMargin,
		now:       func() time.Time { return time.Now().UTC() },
		credential: core.ActiveCredential{
			RefreshToken: refreshToken,
			Refreshable:  true,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache, nil
}

func (c *TokenCache) AccessToken(ctx context.Context) (string, error) {
	if c == nil {
		return "", core.NewAuthError(nil, "mercadolibre: token cache is nil", nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	state := core.ResolveCredentialTokenState(now, c.credential, c.margin)
	if !core.ShouldRefreshCredential(state) {
		if state.HasAccessToken && !state.IsExpired {
			return c.credential.AccessToken, nil
		}
		return "", core.NewAuthError(nil, "mercadolibre: access token expired and cannot be refreshed", nil)
	}

	refreshed, err := c.refresher.Refresh(ctx, c.credential)
	if err != nil {
		return "", core.NewAuthError(err, "mercadolibre: refresh access token", map[string]any{
			"provider_id": core.ProviderMercadoLibre,
		})
	}
	c.credential = refreshed
	return refreshed.AccessToken, nil
}

// Invalidate drops the access token so the next call exchanges the refresh token again.
func (c *TokenCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential.AccessToken = ""
	c.credential.ExpiresAt = nil
}

// Credential returns a snapshot of the cached credential.
func (c *TokenCache) Credential() core.ActiveCredential {
	if c == nil {
		return core.ActiveCredential{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.credential
	if c.credential.ExpiresAt != nil {
		expiresAt := *c.credential.ExpiresAt
		snapshot.ExpiresAt = &expiresAt
	}
	return snapshot
}

var _ core.TokenSource = (*TokenCache)(nil)
