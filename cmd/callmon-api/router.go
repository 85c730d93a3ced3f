package main

import (
	"net/http"

	"callmon-api/internal/auth"
	"callmon-api/internal/callsync"
	"callmon-api/internal/config"
	"callmon-api/internal/http/docs"
	"callmon-api/internal/http/handler"
	"callmon-api/internal/http/middleware"
	"callmon-api/internal/observability/logger"
	"callmon-api/internal/ratelimit"
	"callmon-api/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotProvider is the slice of the engine the readiness probe needs.
type SnapshotProvider interface {
	Snapshot() *callsync.Snapshot
}

// RouterDeps holds the dependencies needed to build the router.
type RouterDeps struct {
	Cfg         *config.Config
	Log         *logger.Logger
	TokenStore  *auth.TokenStore
	RateLimiter *ratelimit.RedisRateLimiter
	Metrics     *telemetry.Metrics
	Registry    *prometheus.Registry
	Engine      SnapshotProvider

	// Handlers
	CallHandler      *handler.CallHandler
	TicketHandler    *handler.TicketHandler
	DialHandler      *handler.DialHandler
	ExtensionHandler *handler.ExtensionHandler
}

// buildRouter builds the chi.Router with all middlewares and routes.
func buildRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLoggingMiddleware(deps.Log))
	r.Use(middleware.RecoveryMiddleware(deps.Log))
	r.Use(telemetry.OTelMiddleware(deps.Cfg.OTELServiceName))
	if deps.Metrics != nil {
		r.Use(telemetry.MetricsMiddleware(deps.Metrics))
	}

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/openapi.yaml", docs.OpenAPIHandler().ServeHTTP)
	r.Get("/docs", docs.ScalarDocsHandler("/openapi.yaml").ServeHTTP)

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if deps.Engine == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ready","note":"engine is nil"}`))
			return
		}

		// Ready once the first cycle has been attempted. A failing
		// upstream does not flip readiness; the snapshot's lastError
		// carries the degradation instead.
		if deps.Engine.Snapshot().Cycles == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"error","message":"first sync cycle not yet attempted"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	registry := deps.Registry
	if registry == nil {
		registry = telemetry.NewPrometheusRegistry()
	}
	r.Get("/metrics", telemetry.MetricsHandler(registry, deps.Cfg.MetricsToken).ServeHTTP)

	// Protected routes
	r.Route("/v1", func(r chi.Router) {
		if deps.TokenStore != nil {
			r.Use(auth.Middleware(deps.TokenStore))
		}
		if deps.RateLimiter != nil {
			r.Use(middleware.RateLimitMiddleware(deps.RateLimiter, deps.Cfg.RateLimitPerClientPerMin))
		}

		if deps.CallHandler != nil {
			r.Route("/calls", func(r chi.Router) {
				r.Get("/", deps.CallHandler.GetCalls)
				r.Post("/refresh", deps.CallHandler.RefreshCalls)
				if deps.DialHandler != nil {
					r.Post("/dial", deps.DialHandler.PlaceCall)
				}
				r.Route("/{callId}", func(r chi.Router) {
					r.Get("/", deps.CallHandler.GetCall)
					if deps.TicketHandler != nil {
						r.Post("/ticket", deps.TicketHandler.CreateTicketForCall)
					}
				})
			})
		}

		if deps.ExtensionHandler != nil {
			r.Get("/extensions", deps.ExtensionHandler.ListExtensions)
		}
	})

	return r
}
