package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultMarketplaceAPIBaseURL = "https://api.mercadolibre.com"
	DefaultMarketplaceTokenURL   = "https://api.mercadolibre.com/oauth/token"
	DefaultForwardSecretHeader   = "X-Forwarded-Secret"
	DefaultWebhookPath           = "/meli/webhook"
	DefaultAllowedTopic          = "orders_v2"
	DefaultSentTimezone          = "America/Sao_Paulo"

	StorageDriverMemory   = "memory"
	StorageDriverSQLite   = "sqlite3"
	StorageDriverPostgres = "postgres"
)

type MarketplaceConfig struct {
	ClientID           string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret       string        `koanf:"client_secret" mapstructure:"client_secret"`
	RefreshToken       string        `koanf:"refresh_token" mapstructure:"refresh_token"`
	APIBaseURL         string        `koanf:"api_base_url" mapstructure:"api_base_url"`
	TokenURL           string        `koanf:"token_url" mapstructure:"token_url"`
	TokenRefreshMargin time.Duration `koanf:"token_refresh_margin" mapstructure:"token_refresh_margin"`
	RequestTimeout     time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	OrderCacheTTL      time.Duration `koanf:"order_cache_ttl" mapstructure:"order_cache_ttl"`
}

type ForwardConfig struct {
	WebhookURL   string        `koanf:"webhook_url" mapstructure:"webhook_url"`
	Secret       string        `koanf:"secret" mapstructure:"secret"`
	SecretHeader string        `koanf:"secret_header" mapstructure:"secret_header"`
	Timeout      time.Duration `koanf:"timeout" mapstructure:"timeout"`
	SentTimezone string        `koanf:"sent_timezone" mapstructure:"sent_timezone"`
}

type WebhookConfig struct {
	Path            string        `koanf:"path" mapstructure:"path"`
	AllowedTopics   []string      `koanf:"allowed_topics" mapstructure:"allowed_topics"`
	SignatureSecret string        `koanf:"signature_secret" mapstructure:"signature_secret"`
	ClaimLease      time.Duration `koanf:"claim_lease" mapstructure:"claim_lease"`
}

type StorageConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type HTTPConfig struct {
	Addr       string `koanf:"addr" mapstructure:"addr"`
	AdminToken string `koanf:"admin_token" mapstructure:"admin_token"`
}

type ObservabilityConfig struct {
	LogLevel     string `koanf:"log_level" mapstructure:"log_level"`
	OTLPEndpoint string `koanf:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	OTLPAuth     string `koanf:"otlp_auth" mapstructure:"otlp_auth"`
}

type Config struct {
	ServiceName   string              `koanf:"service_name" mapstructure:"service_name"`
	Marketplace   MarketplaceConfig   `koanf:"marketplace" mapstructure:"marketplace"`
	Forward       ForwardConfig       `koanf:"forward" mapstructure:"forward"`
	Webhook       WebhookConfig       `koanf:"webhook" mapstructure:"webhook"`
	Storage       StorageConfig       `koanf:"storage" mapstructure:"storage"`
	HTTP          HTTPConfig          `koanf:"http" mapstructure:"http"`
	Observability ObservabilityConfig `koanf:"observability" mapstructure:"observability"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "meli-webhook",
		Marketplace: MarketplaceConfig{
			APIBaseURL:         DefaultMarketplaceAPIBaseURL,
			TokenURL:           DefaultMarketplaceTokenURL,
			TokenRefreshMargin: time.Minute,
			RequestTimeout:     20 * time.Second,
		},
		Forward: ForwardConfig{
			SecretHeader: DefaultForwardSecretHeader,
			Timeout:      15 * time.Second,
			SentTimezone: DefaultSentTimezone,
		},
		Webhook: WebhookConfig{
			Path:          DefaultWebhookPath,
			AllowedTopics: []string{DefaultAllowedTopic},
			ClaimLease:    30 * time.Second,
		},
		Storage: StorageConfig{
			Driver: StorageDriverMemory,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Marketplace.ClientID) == "" {
		return fmt.Errorf("core: marketplace client_id is required")
	}
	if strings.TrimSpace(c.Marketplace.ClientSecret) == "" {
		return fmt.Errorf("core: marketplace client_secret is required")
	}
	if strings.TrimSpace(c.Marketplace.RefreshToken) == "" {
		return fmt.Errorf("core: marketplace refresh_token is required")
	}
	if err := validateAbsoluteURL("marketplace api_base_url", c.Marketplace.APIBaseURL); err != nil {
		return err
	}
	if err := validateAbsoluteURL("marketplace token_url", c.Marketplace.TokenURL); err != nil {
		return err
	}
	if err := validateAbsoluteURL("forward webhook_url", c.Forward.WebhookURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Forward.SecretHeader) == "" {
		return fmt.Errorf("core: forward secret_header is required")
	}
	if c.Forward.Timeout < 0 || c.Marketplace.RequestTimeout < 0 {
		return fmt.Errorf("core: timeouts must not be negative")
	}
	if path := strings.TrimSpace(c.Webhook.Path); path != "" && !strings.HasPrefix(path, "/") {
		return fmt.Errorf("core: webhook path must start with /")
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", StorageDriverMemory:
	case StorageDriverSQLite, StorageDriverPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("core: storage dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("core: unsupported storage driver %q", c.Storage.Driver)
	}
	return nil
}

// TopicAllowed reports whether topic is in the allow list. An empty list or "*" allows all topics.
func (c WebhookConfig) TopicAllowed(topic string) bool {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if len(c.AllowedTopics) == 0 {
		return true
	}
	for _, allowed := range c.AllowedTopics {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "*" || allowed == topic {
			return true
		}
	}
	return false
}

func validateAbsoluteURL(field string, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("core: %s is required", field)
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: %s is invalid: %q", field, value)
	}
	return nil
}
