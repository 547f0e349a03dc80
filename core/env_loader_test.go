package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvConfigLoader_MapsVariables(t *testing.T) {
	loader := EnvConfigLoader{Environment: map[string]string{
		"ML_CLIENT_ID":          "client",
		"ML_CLIENT_SECRET":      "secret",
		"ML_REFRESH_TOKEN":      "refresh",
		"N8N_SALES_WEBHOOK_URL": "https://automation.example/sales",
		"FORWARD_SECRET":        "shh",
		"FORWARD_TIMEOUT":       "7.5",
		"ALLOWED_TOPICS":        "orders_v2, payments ,",
		"PORT":                  "9090",
		"DB_DRIVER":             "SQLITE3",
		"DATABASE_URL":          "file:relay.db",
	}}
	cfg, err := ResolveConfig(context.Background(), Config{}, NewCfgxConfigProvider(loader), nil)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.Forward.WebhookURL != "https://automation.example/sales" {
		t.Fatalf("expected sales webhook fallback, got %q", cfg.Forward.WebhookURL)
	}
	if cfg.Forward.Timeout != 7500*time.Millisecond {
		t.Fatalf("expected seconds timeout, got %s", cfg.Forward.Timeout)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("expected port address, got %q", cfg.HTTP.Addr)
	}
	if !cfg.Webhook.TopicAllowed("payments") || cfg.Webhook.TopicAllowed("questions") {
		t.Fatalf("unexpected topics %v", cfg.Webhook.AllowedTopics)
	}
	if cfg.Storage.Driver != StorageDriverSQLite || cfg.Storage.DSN != "file:relay.db" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
}

func TestEnvConfigLoader_PrimaryWebhookWinsAndDotEnvIsOverridden(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	content := "ML_CLIENT_ID=from-file\nFORWARD_SECRET=file-secret\nN8N_WEBHOOK_URL=https://primary.example/hook\n"
	if err := os.WriteFile(dotenv, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	loader := EnvConfigLoader{
		DotEnvFiles: []string{dotenv, filepath.Join(dir, "missing.env")},
		Environment: map[string]string{
			"FORWARD_SECRET":        "env-secret",
			"N8N_SALES_WEBHOOK_URL": "https://secondary.example/hook",
		},
	}
	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	forward := raw["forward"].(map[string]any)
	if forward["secret"] != "env-secret" {
		t.Fatalf("expected environment to override dotenv, got %v", forward["secret"])
	}
	if forward["webhook_url"] != "https://primary.example/hook" {
		t.Fatalf("expected primary webhook url, got %v", forward["webhook_url"])
	}
	if raw["marketplace"].(map[string]any)["client_id"] != "from-file" {
		t.Fatalf("expected dotenv value, got %v", raw["marketplace"])
	}
}

func TestEnvConfigLoader_RejectsBadDuration(t *testing.T) {
	loader := EnvConfigLoader{Environment: map[string]string{"FORWARD_TIMEOUT": "soon"}}
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected duration error")
	}
}

func TestParseFlexibleDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"":     0,
		"15":   15 * time.Second,
		"0.25": 250 * time.Millisecond,
		"2m":   2 * time.Minute,
	}
	for raw, want := range cases {
		got, err := ParseFlexibleDuration(raw)
		if err != nil || got != want {
			t.Fatalf("ParseFlexibleDuration(%q) = %s, %v", raw, got, err)
		}
	}
	if _, err := ParseFlexibleDuration("-1"); err == nil {
		t.Fatalf("expected negative duration error")
	}
}
