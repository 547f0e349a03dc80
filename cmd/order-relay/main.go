package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	relay "github.com/goliatone/go-order-relay"
	"github.com/goliatone/go-order-relay/adapters/gologger"
	"github.com/goliatone/go-order-relay/core"
	"github.com/goliatone/go-order-relay/observability"
	"go.uber.org/zap/zapcore"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the process environment")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "order-relay: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := core.ResolveConfig(ctx, core.Config{}, core.NewCfgxConfigProvider(core.NewEnvConfigLoader(envFile)), nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	endpoint, insecure := otlpTarget(cfg.Observability.OTLPEndpoint)
	telemetry, err := observability.Setup(ctx, observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: relay.Version,
		Endpoint:       endpoint,
		AuthHeader:     cfg.Observability.OTLPAuth,
		Insecure:       insecure,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "order-relay: telemetry disabled: %v\n", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	var extraCores []zapcore.Core
	if telemetry != nil && telemetry.LogCore != nil {
		extraCores = append(extraCores, telemetry.LogCore)
	}
	base, err := gologger.NewZap(gologger.ZapConfig{
		ServiceName: cfg.ServiceName,
		Level:       cfg.Observability.LogLevel,
		ExtraCores:  extraCores,
	})
	if err != nil {
		return err
	}
	defer func() { _ = base.Sync() }()
	provider := gologger.NewZapProvider(base)
	logger := provider.GetLogger("main")

	app, err := relay.New(ctx, cfg, relay.WithLoggerProvider(provider))
	if err != nil {
		return fmt.Errorf("build relay: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("relay close failed", "error", err.Error())
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr, "telemetry", telemetry.Enabled())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// otlpTarget accepts either host[:port] or a full collector URL.
func otlpTarget(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.Contains(raw, "://") {
		return raw, false
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw, false
	}
	return parsed.Host, parsed.Scheme == "http"
}
