package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-order-relay/adapters/gocommand"
	"github.com/goliatone/go-order-relay/adapters/gologger"
	"github.com/goliatone/go-order-relay/adapters/prommetrics"
	relaycommand "github.com/goliatone/go-order-relay/command"
	"github.com/goliatone/go-order-relay/core"
	"github.com/goliatone/go-order-relay/forward"
	"github.com/goliatone/go-order-relay/providers/mercadolibre"
	relayquery "github.com/goliatone/go-order-relay/query"
	"github.com/goliatone/go-order-relay/server"
	"github.com/goliatone/go-order-relay/store/cache"
	sqlstore "github.com/goliatone/go-order-relay/store/sql"
	"github.com/goliatone/go-order-relay/transport"
	"github.com/goliatone/go-order-relay/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is reported by the root endpoint. Release builds set it with -ldflags.
var Version = "dev"

type Config = core.Config

type deliveryStore interface {
	webhooks.DeliveryLedger
	webhooks.DeliveryLister
}

// Relay is a fully wired order relay: marketplace clients, forwarder, stores and the
// HTTP surface in front of them.
type Relay struct {
	config        core.Config
	logger        glog.Logger
	service       *core.Service
	processor     *webhooks.Processor
	handler       http.Handler
	metrics       *prommetrics.Recorder
	deliveries    deliveryStore
	claims        core.OrderClaimStore
	persistence   *persistence.Client
	subscriptions gocommand.Subscriptions
}

type options struct {
	logger         glog.Logger
	loggerProvider glog.LoggerProvider
	configProvider core.ConfigProvider
	httpClient     *http.Client
	registry       *prometheus.Registry
	dispatcher     *gocommand.RegistryAdapter
	now            func() time.Time
}

type Option func(*options)

func WithLogger(logger glog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(o *options) {
		o.loggerProvider = provider
	}
}

// WithConfigProvider adds a loaded config layer between the defaults and the runtime config.
func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(o *options) {
		o.configProvider = provider
	}
}

// WithHTTPClient replaces the instrumented client used for marketplace and forward calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

func WithMetricsRegistry(registry *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithCommandDispatcher subscribes the relay command and queries on the go-command dispatcher.
func WithCommandDispatcher(adapter *gocommand.RegistryAdapter) Option {
	return func(o *options) {
		o.dispatcher = adapter
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New resolves the configuration and wires every relay component.
func New(ctx context.Context, cfg Config, opts ...Option) (*Relay, error) {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	resolved, err := core.ResolveConfig(ctx, cfg, o.configProvider, nil)
	if err != nil {
		return nil, core.MapError(err)
	}
	provider, logger := gologger.Resolve("relay", o.loggerProvider, o.logger)
	recorder := prommetrics.NewRecorder(o.registry)

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(resolved.Marketplace.RequestTimeout)
	}
	rest := transport.NewRESTAdapter(httpClient)

	orders, fetcher, err := newOrderFetcher(resolved.Marketplace, httpClient, rest)
	if err != nil {
		return nil, err
	}
	forwarder, err := forward.NewClient(forward.Config{
		WebhookURL:   resolved.Forward.WebhookURL,
		Secret:       resolved.Forward.Secret,
		SecretHeader: resolved.Forward.SecretHeader,
		Timeout:      resolved.Forward.Timeout,
	}, rest)
	if err != nil {
		return nil, err
	}

	r := &Relay{config: resolved, logger: logger, metrics: recorder}
	if err := r.openStores(ctx, resolved.Storage); err != nil {
		return nil, err
	}

	serviceOpts := []core.Option{
		core.WithLogger(logger),
		core.WithLoggerProvider(provider),
		core.WithMetricsRecorder(recorder),
		core.WithOrderFetcher(fetcher),
		core.WithForwarder(forwarder),
		core.WithOrderClaimStore(r.claims),
	}
	if o.now != nil {
		serviceOpts = append(serviceOpts, core.WithClock(o.now))
	}
	r.service, err = core.NewService(resolved, serviceOpts...)
	if err != nil {
		return nil, r.closeOnError(err)
	}

	template := mercadolibre.NewWebhookTemplate(resolved.Webhook.SignatureSecret)
	r.processor = template.Processor(r.deliveries, r.service)
	if resolved.Webhook.ClaimLease > 0 {
		r.processor.ClaimLease = resolved.Webhook.ClaimLease
	}

	notifications := relaycommand.NewProcessNotificationCommand(r.processor)
	listDeliveries := relayquery.NewListDeliveriesQuery(r.deliveries)
	getDelivery := relayquery.NewGetDeliveryQuery(r.deliveries)
	recentSales := relayquery.NewRecentSalesQuery(orders)

	r.handler, err = server.NewRouter(server.Config{
		ServiceName: resolved.ServiceName,
		Version:     Version,
		WebhookPath: resolved.Webhook.Path,
		AdminToken:  resolved.HTTP.AdminToken,
	}, server.Dependencies{
		Notifications: notifications,
		Deliveries:    listDeliveries,
		Delivery:      getDelivery,
		Sales:         recentSales,
		Metrics:       recorder.Handler(),
		Recorder:      recorder,
		Logger:        logger,
	})
	if err != nil {
		return nil, r.closeOnError(err)
	}

	if o.dispatcher != nil {
		r.subscriptions, err = gocommand.RegisterRelayHandlers(o.dispatcher, gocommand.RelayHandlers{
			ProcessNotification: notifications,
			ListDeliveries:      listDeliveries,
			GetDelivery:         getDelivery,
			RecentSales:         recentSales,
		})
		if err != nil {
			return nil, r.closeOnError(err)
		}
	}

	logger.Info("relay ready",
		"service", resolved.ServiceName,
		"webhook_path", resolved.Webhook.Path,
		"storage", storageDriver(resolved.Storage),
		"signature_check", strings.TrimSpace(resolved.Webhook.SignatureSecret) != "",
		"admin_routes", strings.TrimSpace(resolved.HTTP.AdminToken) != "",
	)
	return r, nil
}

// newOrderFetcher returns the marketplace client and the fetcher the service uses,
// which is the client behind a cache when ORDER_CACHE_TTL is set.
func newOrderFetcher(cfg core.MarketplaceConfig, httpClient *http.Client, rest core.TransportAdapter) (*mercadolibre.OrderClient, core.OrderFetcher, error) {
	oauth, err := mercadolibre.NewOAuthClient(mercadolibre.OAuthConfig{
		TokenURL:            cfg.TokenURL,
		ClientID:            cfg.ClientID,
		ClientSecret:        cfg.ClientSecret,
		TokenRequestTimeout: cfg.RequestTimeout,
		HTTPClient:          httpClient,
	})
	if err != nil {
		return nil, nil, err
	}
	tokens, err := mercadolibre.NewTokenCache(oauth, cfg.RefreshToken, mercadolibre.WithRefreshMargin(cfg.TokenRefreshMargin))
	if err != nil {
		return nil, nil, err
	}
	orders, err := mercadolibre.NewOrderClient(mercadolibre.OrderClientConfig{
		APIBaseURL:     cfg.APIBaseURL,
		RequestTimeout: cfg.RequestTimeout,
	}, rest, tokens)
	if err != nil {
		return nil, nil, err
	}
	if cfg.OrderCacheTTL <= 0 {
		return orders, orders, nil
	}
	cacheService, err := cache.NewOrderCacheService(cfg.OrderCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	cached, err := cache.NewCachedOrderFetcher(orders, cacheService)
	if err != nil {
		return nil, nil, err
	}
	return orders, cached, nil
}

func (r *Relay) openStores(ctx context.Context, cfg core.StorageConfig) error {
	if storageDriver(cfg) == core.StorageDriverMemory {
		r.deliveries = webhooks.NewMemoryLedger()
		r.claims = core.NewMemoryOrderClaimStore()
		return nil
	}
	client, err := sqlstore.Open(ctx, sqlstore.PersistenceConfig{
		Driver: storageDriver(cfg),
		DSN:    cfg.DSN,
		Debug:  cfg.Debug,
	}, GetMigrationsFS())
	if err != nil {
		return err
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		_ = client.Close()
		return err
	}
	r.persistence = client
	r.deliveries = factory.WebhookDeliveryStore()
	r.claims = factory.OrderClaimStore()
	return nil
}

func storageDriver(cfg core.StorageConfig) string {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		return core.StorageDriverMemory
	}
	return driver
}

func (r *Relay) closeOnError(err error) error {
	if closeErr := r.Close(); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}

// Handler serves the relay endpoints.
func (r *Relay) Handler() http.Handler {
	if r == nil {
		return nil
	}
	return r.handler
}

func (r *Relay) Config() Config {
	if r == nil {
		return Config{}
	}
	return r.config
}

func (r *Relay) Service() *core.Service {
	if r == nil {
		return nil
	}
	return r.service
}

func (r *Relay) Metrics() *prommetrics.Recorder {
	if r == nil {
		return nil
	}
	return r.metrics
}

// Close releases dispatcher subscriptions and the database connection. It is safe to
// call more than once.
func (r *Relay) Close() error {
	if r == nil {
		return nil
	}
	r.subscriptions.Unsubscribe()
	r.subscriptions = nil
	if r.persistence == nil {
		return nil
	}
	client := r.persistence
	r.persistence = nil
	if err := client.Close(); err != nil {
		return fmt.Errorf("relay: close persistence: %w", err)
	}
	return nil
}
