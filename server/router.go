package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"
	relaycommand "github.com/goliatone/go-order-relay/command"
	"github.com/goliatone/go-order-relay/core"
	relayquery "github.com/goliatone/go-order-relay/query"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultMaxBodyBytes = 1 << 20 // 1 MiB
	AdminTokenHeader    = "X-Admin-Token"
)

type Config struct {
	ServiceName  string
	Version      string
	WebhookPath  string
	AdminToken   string
	MaxBodyBytes int64
}

type Dependencies struct {
	Notifications *relaycommand.ProcessNotificationCommand
	Deliveries    *relayquery.ListDeliveriesQuery
	Delivery      *relayquery.GetDeliveryQuery
	Sales         *relayquery.RecentSalesQuery
	Metrics       http.Handler
	Recorder      core.MetricsRecorder
	Logger        glog.Logger
}

type handlers struct {
	cfg    Config
	deps   Dependencies
	logger glog.Logger
}

// NewRouter builds the relay HTTP surface. The admin routes exist only when an
// admin token is configured.
func NewRouter(cfg Config, deps Dependencies) (http.Handler, error) {
	if deps.Notifications == nil {
		return nil, fmt.Errorf("server: notification command is required")
	}
	cfg.WebhookPath = strings.TrimSpace(cfg.WebhookPath)
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = core.DefaultWebhookPath
	}
	if !strings.HasPrefix(cfg.WebhookPath, "/") {
		return nil, fmt.Errorf("server: webhook path must start with /")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	cfg.AdminToken = strings.TrimSpace(cfg.AdminToken)
	if deps.Recorder == nil {
		deps.Recorder = core.NopMetricsRecorder{}
	}
	_, logger := glog.Resolve("server", nil, deps.Logger)

	h := &handlers{cfg: cfg, deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	r.Get("/healthz", h.health)
	r.Get("/", h.root)
	r.Head("/", h.root)
	r.Post("/", h.notification)
	if cfg.WebhookPath != "/" {
		r.Post(cfg.WebhookPath, h.notification)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if cfg.AdminToken != "" {
		r.Group(func(admin chi.Router) {
			admin.Use(h.requireAdmin)
			if deps.Deliveries != nil {
				admin.Get("/deliveries", h.listDeliveries)
			}
			if deps.Delivery != nil {
				admin.Get("/deliveries/{providerID}/{deliveryID}", h.getDelivery)
			}
			if deps.Sales != nil {
				admin.Get("/sales", h.recentSales)
			}
		})
	}

	return otelhttp.NewHandler(r, "relay.http",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	), nil
}

func (h *handlers) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		tags := map[string]string{
			"route":  route,
			"method": r.Method,
			"status": strconv.Itoa(status),
		}
		h.deps.Recorder.IncCounter(r.Context(), "relay.http.requests.total", 1, tags)
		h.deps.Recorder.ObserveHistogram(r.Context(), "relay.http.request.duration_ms", float64(time.Since(startedAt).Milliseconds()), tags)
	})
}

func (h *handlers) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get(AdminTokenHeader))
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, core.RelayErrorSignatureInvalid, "admin token is missing or invalid")
			return
		}
		next.ServeHTTP(w, r)
	})
}
