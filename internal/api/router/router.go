package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/careplus-reminders/internal/appointments"
	"github.com/wolfman30/careplus-reminders/internal/audit"
	"github.com/wolfman30/careplus-reminders/internal/dispatch"
	httpmiddleware "github.com/wolfman30/careplus-reminders/internal/http/middleware"
	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	DispatchHandler    *dispatch.Handler
	AppointmentHandler *appointments.Handler
	AuditHandler       *audit.Handler
	MetricsHandler     http.Handler
	LatencyHandler     http.Handler
	CORSAllowedOrigins []string
	DashboardJWTSecret string
	// DispatchRateLimiter throttles the dispatch function per client IP; nil disables it.
	DispatchRateLimiter *httpmiddleware.RateLimiter

	// HealthChecks run on GET /health; any error reports the service as degraded.
	HealthChecks map[string]func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// The dispatch function answers with permissive CORS headers and its own
	// envelope, including when the limiter or auth rejects the call.
	if cfg.DispatchHandler != nil {
		r.Group(func(fn chi.Router) {
			fn.Use(dispatch.CORS)
			fn.Use(httpmiddleware.RateLimit(cfg.DispatchRateLimiter, dispatch.WriteFailure))
			fn.Use(httpmiddleware.DashboardJWTWithRejecter(cfg.DashboardJWTSecret, dispatch.WriteFailure))
			for _, path := range []string{"/functions/v1/send-notification", "/send-notification"} {
				fn.Method(http.MethodPost, path, cfg.DispatchHandler)
				fn.Method(http.MethodOptions, path, cfg.DispatchHandler)
			}
		})
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
		api.Use(middleware.Compress(5))
		api.Use(httpmiddleware.DashboardJWT(cfg.DashboardJWTSecret))
		if cfg.AppointmentHandler != nil {
			cfg.AppointmentHandler.Routes(api)
		}
		if cfg.LatencyHandler != nil {
			api.Method(http.MethodGet, "/dashboard/provider-latency", cfg.LatencyHandler)
		}
		if cfg.AuditHandler != nil {
			api.Method(http.MethodGet, "/logs", cfg.AuditHandler)
		}
	})

	return r
}

func healthHandler(checks map[string]func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]string{"status": "ok"}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
				resp[name] = err.Error()
				continue
			}
			resp[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
