package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type envValues struct {
	ServiceName string `env:"SERVICE_NAME"`

	ClientID           string `env:"ML_CLIENT_ID"`
	ClientSecret       string `env:"ML_CLIENT_SECRET"`
	RefreshToken       string `env:"ML_REFRESH_TOKEN"`
	APIBaseURL         string `env:"ML_API_BASE_URL"`
	TokenURL           string `env:"ML_TOKEN_URL"`
	TokenRefreshMargin string `env:"TOKEN_REFRESH_MARGIN"`
	RequestTimeout     string `env:"ML_REQUEST_TIMEOUT"`
	OrderCacheTTL      string `env:"ORDER_CACHE_TTL"`

	WebhookURL      string `env:"N8N_WEBHOOK_URL"`
	SalesWebhookURL string `env:"N8N_SALES_WEBHOOK_URL"`
	ForwardSecret   string `env:"FORWARD_SECRET"`
	ForwardHeader   string `env:"FORWARD_SECRET_HEADER"`
	ForwardTimeout  string `env:"FORWARD_TIMEOUT"`
	ForwardSentZone string `env:"FORWARD_SENT_TIMEZONE"`

	WebhookPath       string   `env:"WEBHOOK_PATH"`
	WebhookSecret     string   `env:"WEBHOOK_SECRET"`
	AllowedTopics     []string `env:"ALLOWED_TOPICS" envSeparator:","`
	WebhookClaimLease string   `env:"WEBHOOK_CLAIM_LEASE"`

	StorageDriver string `env:"DB_DRIVER"`
	DatabaseURL   string `env:"DATABASE_URL"`
	StorageDebug  bool   `env:"DB_DEBUG"`

	Port       string `env:"PORT"`
	HTTPAddr   string `env:"HTTP_ADDR"`
	AdminToken string `env:"ADMIN_TOKEN"`

	LogLevel     string `env:"LOG_LEVEL"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPAuth     string `env:"OTEL_EXPORTER_AUTH"`
}

// EnvConfigLoader reads optional dotenv files and the process environment into a raw config layer.
// Process variables win over dotenv values.
type EnvConfigLoader struct {
	DotEnvFiles []string
	// Environment replaces the process environment when set.
	Environment map[string]string
}

func NewEnvConfigLoader(dotEnvFiles ...string) EnvConfigLoader {
	if len(dotEnvFiles) == 0 {
		dotEnvFiles = []string{".env"}
	}
	return EnvConfigLoader{DotEnvFiles: dotEnvFiles}
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	environment, err := l.environment()
	if err != nil {
		return nil, err
	}
	var values envValues
	if err := env.Parse(&values, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("core: parse environment: %w", err)
	}
	return values.layer()
}

func (l EnvConfigLoader) environment() (map[string]string, error) {
	out := map[string]string{}
	for _, file := range l.DotEnvFiles {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("core: read dotenv %s: %w", file, err)
		}
		for key, value := range values {
			out[key] = value
		}
	}
	if l.Environment != nil {
		for key, value := range l.Environment {
			out[key] = value
		}
		return out, nil
	}
	for _, pair := range os.Environ() {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[key] = value
	}
	return out, nil
}

func (v envValues) layer() (map[string]any, error) {
	layer := map[string]any{}
	putString(layer, "service_name", v.ServiceName, false)

	marketplace := map[string]any{}
	putString(marketplace, "client_id", v.ClientID, false)
	putString(marketplace, "client_secret", v.ClientSecret, false)
	putString(marketplace, "refresh_token", v.RefreshToken, false)
	putString(marketplace, "api_base_url", v.APIBaseURL, false)
	putString(marketplace, "token_url", v.TokenURL, false)
	if err := putEnvDuration(marketplace, "token_refresh_margin", "TOKEN_REFRESH_MARGIN", v.TokenRefreshMargin); err != nil {
		return nil, err
	}
	if err := putEnvDuration(marketplace, "request_timeout", "ML_REQUEST_TIMEOUT", v.RequestTimeout); err != nil {
		return nil, err
	}
	if err := putEnvDuration(marketplace, "order_cache_ttl", "ORDER_CACHE_TTL", v.OrderCacheTTL); err != nil {
		return nil, err
	}
	putSection(layer, "marketplace", marketplace)

	forward := map[string]any{}
	webhookURL := v.WebhookURL
	if strings.TrimSpace(webhookURL) == "" {
		webhookURL = v.SalesWebhookURL
	}
	putString(forward, "webhook_url", webhookURL, false)
	putString(forward, "secret", v.ForwardSecret, false)
	putString(forward, "secret_header", v.ForwardHeader, false)
	putString(forward, "sent_timezone", v.ForwardSentZone, false)
	if err := putEnvDuration(forward, "timeout", "FORWARD_TIMEOUT", v.ForwardTimeout); err != nil {
		return nil, err
	}
	putSection(layer, "forward", forward)

	webhook := map[string]any{}
	putString(webhook, "path", v.WebhookPath, false)
	putString(webhook, "signature_secret", v.WebhookSecret, false)
	if topics := trimList(v.AllowedTopics); len(topics) > 0 {
		webhook["allowed_topics"] = topics
	}
	if err := putEnvDuration(webhook, "claim_lease", "WEBHOOK_CLAIM_LEASE", v.WebhookClaimLease); err != nil {
		return nil, err
	}
	putSection(layer, "webhook", webhook)

	storage := map[string]any{}
	putString(storage, "driver", strings.ToLower(v.StorageDriver), false)
	putString(storage, "dsn", v.DatabaseURL, false)
	if v.StorageDebug {
		storage["debug"] = true
	}
	putSection(layer, "storage", storage)

	httpLayer := map[string]any{}
	addr := strings.TrimSpace(v.HTTPAddr)
	if addr == "" && strings.TrimSpace(v.Port) != "" {
		addr = ":" + strings.TrimSpace(v.Port)
	}
	putString(httpLayer, "addr", addr, false)
	putString(httpLayer, "admin_token", v.AdminToken, false)
	putSection(layer, "http", httpLayer)

	observability := map[string]any{}
	putString(observability, "log_level", v.LogLevel, false)
	putString(observability, "otlp_endpoint", v.OTLPEndpoint, false)
	putString(observability, "otlp_auth", v.OTLPAuth, false)
	putSection(layer, "observability", observability)

	return layer, nil
}

func putEnvDuration(layer map[string]any, key string, variable string, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	value, err := ParseFlexibleDuration(raw)
	if err != nil {
		return fmt.Errorf("core: %s: %w", variable, err)
	}
	layer[key] = value
	return nil
}

// ParseFlexibleDuration accepts Go durations ("15s") and plain seconds ("15", "15.5").
func ParseFlexibleDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("duration %q must not be negative", raw)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if value < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", raw)
	}
	return value, nil
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
