package core

import (
	"context"
	"strings"
	"testing"
	"time"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing client id", mutate: func(c *Config) { c.Marketplace.ClientID = " " }, wantErr: "client_id"},
		{name: "missing refresh token", mutate: func(c *Config) { c.Marketplace.RefreshToken = "" }, wantErr: "refresh_token"},
		{name: "relative forward url", mutate: func(c *Config) { c.Forward.WebhookURL = "/hook" }, wantErr: "webhook_url"},
		{name: "webhook path", mutate: func(c *Config) { c.Webhook.Path = "meli" }, wantErr: "path"},
		{name: "sqlite without dsn", mutate: func(c *Config) { c.Storage.Driver = StorageDriverSQLite }, wantErr: "dsn"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "mysql" }, wantErr: "unsupported"},
		{name: "negative timeout", mutate: func(c *Config) { c.Forward.Timeout = -time.Second }, wantErr: "negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestWebhookConfig_TopicAllowed(t *testing.T) {
	cfg := WebhookConfig{AllowedTopics: []string{"orders_v2", " Payments "}}
	if !cfg.TopicAllowed("ORDERS_V2") || !cfg.TopicAllowed("payments") {
		t.Fatalf("expected configured topics to be allowed")
	}
	if cfg.TopicAllowed("questions") {
		t.Fatalf("expected unlisted topic to be rejected")
	}
	if !(WebhookConfig{}).TopicAllowed("anything") || !(WebhookConfig{AllowedTopics: []string{"*"}}).TopicAllowed("x") {
		t.Fatalf("expected empty list and wildcard to allow all topics")
	}
}

func TestResolveConfig_LayersRuntimeOverLoaded(t *testing.T) {
	loaded := validConfig()
	loaded.Forward.Secret = "from-env"
	loaded.Forward.Timeout = 5 * time.Second
	loaded.Webhook.AllowedTopics = []string{"orders_v2", "payments"}

	runtime := Config{Forward: ForwardConfig{Secret: "from-runtime"}}

	cfg, err := ResolveConfig(context.Background(), runtime, fixedConfigProvider{cfg: loaded}, nil)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.Forward.Secret != "from-runtime" {
		t.Fatalf("expected runtime secret to win, got %q", cfg.Forward.Secret)
	}
	if cfg.Forward.Timeout != 5*time.Second {
		t.Fatalf("expected loaded timeout, got %s", cfg.Forward.Timeout)
	}
	if cfg.Forward.SecretHeader != DefaultForwardSecretHeader || cfg.Webhook.Path != DefaultWebhookPath {
		t.Fatalf("expected defaults to fill gaps, got %+v", cfg)
	}
	if !cfg.Webhook.TopicAllowed("payments") {
		t.Fatalf("expected loaded topics, got %v", cfg.Webhook.AllowedTopics)
	}
}

func TestResolveConfig_ValidatesMergedResult(t *testing.T) {
	if _, err := ResolveConfig(context.Background(), Config{}, nil, nil); err == nil {
		t.Fatalf("expected defaults alone to fail validation")
	}
}
