package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/careplus-reminders/cmd/mainconfig"
	"github.com/wolfman30/careplus-reminders/internal/api/router"
	"github.com/wolfman30/careplus-reminders/internal/app/bootstrap"
	"github.com/wolfman30/careplus-reminders/internal/appointments"
	"github.com/wolfman30/careplus-reminders/internal/audit"
	appconfig "github.com/wolfman30/careplus-reminders/internal/config"
	"github.com/wolfman30/careplus-reminders/internal/dispatch"
	httpmiddleware "github.com/wolfman30/careplus-reminders/internal/http/middleware"
	"github.com/wolfman30/careplus-reminders/internal/notify"
	"github.com/wolfman30/careplus-reminders/internal/observability/metrics"
	"github.com/wolfman30/careplus-reminders/internal/observability/tracing"
	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting careplus reminder API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"email_provider", cfg.EmailProvider,
	)

	ctx := context.Background()
	otelShutdown, err := tracing.Setup(ctx, cfg.TracingConfig("careplus-api"))
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	storage, err := bootstrap.BuildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	senders, err := setupSenders(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize senders", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	registry, metricsHandler, dispatchMetrics := setupMetrics()
	routerCfg := buildRouterConfig(cfg, logger, storage, senders, bootstrap.BuildIdempotencyGuard(redisClient, cfg), dispatchMetrics)
	defer routerCfg.DispatchRateLimiter.Stop()
	routerCfg.MetricsHandler = metricsHandler
	routerCfg.LatencyHandler = metrics.LatencyHandler(registry, channelNames())
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(r, "careplus-api"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics builds a dedicated registry so /metrics only exposes this process.
func setupMetrics() (*prometheus.Registry, http.Handler, *metrics.DispatchMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	dispatchMetrics := metrics.NewDispatchMetrics(registry)
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return registry, handler, dispatchMetrics
}

// setupSenders resolves provider credentials. SES needs an AWS client, the
// other providers only need keys from the environment.
func setupSenders(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.Senders, error) {
	opts := cfg.NotifyOptions()
	if cfg.EmailProvider == notify.EmailProviderSES {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return notify.Senders{}, fmt.Errorf("load aws config: %w", err)
		}
		opts.SES = mainconfig.NewSESClient(awsCfg, cfg)
	}
	return notify.NewSenders(opts, logger), nil
}

func buildRouterConfig(
	cfg *appconfig.Config,
	logger *logging.Logger,
	storage *bootstrap.Storage,
	senders notify.Senders,
	guard *dispatch.IdempotencyGuard,
	dispatchMetrics *metrics.DispatchMetrics,
) *router.Config {
	svc := dispatch.NewService(senders, storage.Appointments, storage.AuditLogger(), logger, dispatch.WithMetrics(dispatchMetrics))
	handlerOpts := []dispatch.HandlerOption{dispatch.WithHandlerMetrics(dispatchMetrics)}
	if guard != nil {
		handlerOpts = append(handlerOpts, dispatch.WithIdempotency(guard))
	}

	return &router.Config{
		Logger:              logger,
		DispatchHandler:     dispatch.NewHandler(svc, logger, handlerOpts...),
		AppointmentHandler:  appointments.NewHandler(storage.Appointments, logger),
		AuditHandler:        audit.NewHandler(storage.AuditReader(), logger),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		DashboardJWTSecret:  cfg.DashboardJWTSecret,
		DispatchRateLimiter: httpmiddleware.NewRateLimiter(cfg.DispatchRateLimitRPS, cfg.DispatchRateLimitBurst),
		HealthChecks: map[string]func(context.Context) error{
			"database": storage.Ping,
		},
	}
}

func channelNames() []string {
	out := make([]string, 0, len(notify.Channels))
	for _, ch := range notify.Channels {
		out = append(out, string(ch))
	}
	return out
}
