package mercadolibre

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-order-relay/core"
)

func TestOAuthClient_RefreshRotatesRefreshToken(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for key := range r.PostForm {
			gotForm[key] = r.PostForm.Get(key)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"APP_USR-new","token_type":"Bearer","expires_in":21600,"scope":"offline_access read","user_id":123456,"refresh_token":"TG-rotated"}`))
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	client, err := NewOAuthClient(OAuthConfig{
		TokenURL:     server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		Now:          func() time.Time { return now },
		HTTPClient:   server.Client(),
	})
	if err != nil {
		t.Fatalf("new oauth client: %v", err)
	}

	cred, err := client.Refresh(context.Background(), core.ActiveCredential{RefreshToken: "TG-original", Refreshable: true})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	expectedForm := map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     "client",
		"client_secret": "secret",
		"refresh_token": "TG-original",
	}
	for key, value := range expectedForm {
		if gotForm[key] != value {
			t.Fatalf("expected form %s=%q, got %q", key, value, gotForm[key])
		}
	}
	if cred.AccessToken != "APP_USR-new" || cred.RefreshToken != "TG-rotated" {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if cred.TokenType != "bearer" || cred.UserID != "123456" {
		t.Fatalf("expected normalized token type and user id, got %q %q", cred.TokenType, cred.UserID)
	}
	if cred.ExpiresAt == nil || !cred.ExpiresAt.Equal(now.Add(6*time.Hour)) {
		t.Fatalf("expected expiry from expires_in, got %v", cred.ExpiresAt)
	}
	if cred.Metadata["rotated"] != true {
		t.Fatalf("expected rotated marker")
	}
}

func TestOAuthClient_RefreshDefaultsExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	client, err := NewOAuthClient(OAuthConfig{
		TokenURL:     server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		Now:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new oauth client: %v", err)
	}
	cred, err := client.Refresh(context.Background(), core.ActiveCredential{RefreshToken: "TG-1"})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if cred.RefreshToken != "TG-1" {
		t.Fatalf("expected refresh token to be kept when not rotated, got %q", cred.RefreshToken)
	}
	if !cred.ExpiresAt.Equal(now.Add(600 * time.Second)) {
		t.Fatalf("expected default ttl of 600s, got %v", cred.ExpiresAt)
	}
}

func TestOAuthClient_RefreshSurfacesEndpointError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid_grant","error":"invalid_grant","status":400}`))
	}))
	defer server.Close()

	client, err := NewOAuthClient(OAuthConfig{TokenURL: server.URL, ClientID: "c", ClientSecret: "s"})
	if err != nil {
		t.Fatalf("new oauth client: %v", err)
	}
	_, err = client.Refresh(context.Background(), core.ActiveCredential{RefreshToken: "TG-used"})
	if err == nil {
		t.Fatalf("expected token endpoint error")
	}
	if !strings.Contains(err.Error(), "(400)") || !strings.Contains(err.Error(), "invalid_grant") {
		t.Fatalf("expected status and reason in error, got %v", err)
	}
}

func TestOAuthClient_RefreshRequiresAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
	}))
	defer server.Close()

	client, _ := NewOAuthClient(OAuthConfig{TokenURL: server.URL, ClientID: "c", ClientSecret: "s"})
	if _, err := client.Refresh(context.Background(), core.ActiveCredential{RefreshToken: "TG"}); err == nil {
		t.Fatalf("expected missing access token error")
	}
}

func TestNewOAuthClient_ValidatesConfig(t *testing.T) {
	if _, err := NewOAuthClient(OAuthConfig{ClientID: "c", ClientSecret: "s"}); err == nil {
		t.Fatalf("expected token url error")
	}
	if _, err := NewOAuthClient(OAuthConfig{TokenURL: "https://example.test/token", ClientID: "c"}); err == nil {
		t.Fatalf("expected client secret error")
	}
}
