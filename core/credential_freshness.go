package core

import (
	"strings"
	"time"
)

const DefaultTokenRefreshMargin = time.Minute

// CredentialTokenState captures access/refresh lifecycle state derived from an active credential.
type CredentialTokenState struct {
	ExpiresAt       *time.Time
	HasAccessToken  bool
	HasRefreshToken bool
	CanAutoRefresh  bool
	IsExpired       bool
	IsExpiringSoon  bool
}

// ResolveCredentialTokenState evaluates expiry and refreshability flags for a credential.
func ResolveCredentialTokenState(now time.Time, credential ActiveCredential, margin time.Duration) CredentialTokenState {
	now = normalizeNow(now)
	if margin <= 0 {
		margin = DefaultTokenRefreshMargin
	}

	state := CredentialTokenState{
		HasAccessToken:  strings.TrimSpace(credential.AccessToken) != "",
		HasRefreshToken: strings.TrimSpace(credential.RefreshToken) != "",
		CanAutoRefresh:  credential.Refreshable && strings.TrimSpace(credential.RefreshToken) != "",
	}
	if credential.ExpiresAt == nil {
		return state
	}
	expiresAt := credential.ExpiresAt.UTC()
	state.ExpiresAt = &expiresAt
	if !expiresAt.After(now) {
		state.IsExpired = true
		return state
	}
	state.IsExpiringSoon = !expiresAt.After(now.Add(margin))
	return state
}

// ShouldRefreshCredential returns true when the access token is missing or inside the refresh margin.
func ShouldRefreshCredential(state CredentialTokenState) bool {
	if !state.CanAutoRefresh {
		return false
	}
	if !state.HasAccessToken {
		return true
	}
	return state.IsExpired || state.IsExpiringSoon
}

func normalizeNow(now time.Time) time.Time {
	if now.IsZero() {
		return time.Now().UTC()
	}
	return now.UTC()
}
