package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/souschef-platform/souschef/internal/engine"
	mw "github.com/souschef-platform/souschef/internal/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	WebhookRateLimiter func(http.Handler) http.Handler
}

// Health holds the dependency probes the readiness endpoint reports on.
// Nil probes are reported as "not configured".
type Health struct {
	RedisPing   func(context.Context) error
	NATSHealthy func() bool
}

func NewRouter(eng *engine.Engine, probes Health, cfg RouterConfig, webhook http.Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — index load state plus Redis and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		state := eng.Readiness()
		health := map[string]string{
			"status": "ready",
			"index":  state.String(),
			"redis":  "healthy",
			"nats":   "healthy",
		}
		status := http.StatusOK

		if state != engine.Ready {
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
			if err := eng.LoadError(); err != nil {
				health["index_error"] = err.Error()
			}
		}

		if probes.RedisPing != nil {
			if err := probes.RedisPing(r.Context()); err != nil {
				health["redis"] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		} else {
			health["redis"] = "not configured"
		}

		if probes.NATSHealthy != nil {
			if !probes.NATSHealthy() {
				health["nats"] = "unhealthy"
				health["status"] = "degraded"
			}
		} else {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Channel webhook, optionally rate-limited
	r.Group(func(r chi.Router) {
		if cfg.WebhookRateLimiter != nil {
			r.Use(cfg.WebhookRateLimiter)
		}
		r.Method(http.MethodPost, "/webhook", webhook)
	})

	return r
}
