package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	orderFetcher    OrderFetcher
	forwarder       Forwarder
	orderClaims     OrderClaimStore
	now             func() time.Time
	location        *time.Location
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOrderFetcher(fetcher OrderFetcher) Option {
	return func(b *serviceBuilder) {
		b.orderFetcher = fetcher
	}
}

func WithForwarder(forwarder Forwarder) Option {
	return func(b *serviceBuilder) {
		b.forwarder = forwarder
	}
}

func WithOrderClaimStore(store OrderClaimStore) Option {
	return func(b *serviceBuilder) {
		b.orderClaims = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

// WithSentLocation overrides the timezone used when a notification carries no sent timestamp.
func WithSentLocation(location *time.Location) Option {
	return func(b *serviceBuilder) {
		b.location = location
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	return serviceBuilder{
		runtimeConfig:   runtime,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// ResolveConfig layers defaults, loaded values and runtime overrides into a validated Config.
func ResolveConfig(ctx context.Context, runtime Config, provider ConfigProvider, resolver OptionsResolver) (Config, error) {
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load decodes the raw layer without validating it; validation runs after all layers merge.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, fmt.Errorf("core: decode config: %w", err)
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)

	marketplace := map[string]any{}
	putString(marketplace, "client_id", cfg.Marketplace.ClientID, includeZero)
	putString(marketplace, "client_secret", cfg.Marketplace.ClientSecret, includeZero)
	putString(marketplace, "refresh_token", cfg.Marketplace.RefreshToken, includeZero)
	putString(marketplace, "api_base_url", cfg.Marketplace.APIBaseURL, includeZero)
	putString(marketplace, "token_url", cfg.Marketplace.TokenURL, includeZero)
	putDuration(marketplace, "token_refresh_margin", cfg.Marketplace.TokenRefreshMargin, includeZero)
	putDuration(marketplace, "request_timeout", cfg.Marketplace.RequestTimeout, includeZero)
	putDuration(marketplace, "order_cache_ttl", cfg.Marketplace.OrderCacheTTL, includeZero)
	putSection(layer, "marketplace", marketplace)

	forward := map[string]any{}
	putString(forward, "webhook_url", cfg.Forward.WebhookURL, includeZero)
	putString(forward, "secret", cfg.Forward.Secret, includeZero)
	putString(forward, "secret_header", cfg.Forward.SecretHeader, includeZero)
	putDuration(forward, "timeout", cfg.Forward.Timeout, includeZero)
	putString(forward, "sent_timezone", cfg.Forward.SentTimezone, includeZero)
	putSection(layer, "forward", forward)

	webhook := map[string]any{}
	putString(webhook, "path", cfg.Webhook.Path, includeZero)
	if includeZero || len(cfg.Webhook.AllowedTopics) > 0 {
		webhook["allowed_topics"] = append([]string(nil), cfg.Webhook.AllowedTopics...)
	}
	putString(webhook, "signature_secret", cfg.Webhook.SignatureSecret, includeZero)
	putDuration(webhook, "claim_lease", cfg.Webhook.ClaimLease, includeZero)
	putSection(layer, "webhook", webhook)

	storage := map[string]any{}
	putString(storage, "driver", cfg.Storage.Driver, includeZero)
	putString(storage, "dsn", cfg.Storage.DSN, includeZero)
	if includeZero || cfg.Storage.Debug {
		storage["debug"] = cfg.Storage.Debug
	}
	putSection(layer, "storage", storage)

	httpLayer := map[string]any{}
	putString(httpLayer, "addr", cfg.HTTP.Addr, includeZero)
	putString(httpLayer, "admin_token", cfg.HTTP.AdminToken, includeZero)
	putSection(layer, "http", httpLayer)

	observability := map[string]any{}
	putString(observability, "log_level", cfg.Observability.LogLevel, includeZero)
	putString(observability, "otlp_endpoint", cfg.Observability.OTLPEndpoint, includeZero)
	putString(observability, "otlp_auth", cfg.Observability.OTLPAuth, includeZero)
	putSection(layer, "observability", observability)

	return layer
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = strings.TrimSpace(value)
	}
}

func putDuration(layer map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
