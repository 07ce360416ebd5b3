package server

import (
	"context"
	"net/http"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/courseflow/courseflow/internal/appid"
	"github.com/courseflow/courseflow/internal/auth"
	"github.com/courseflow/courseflow/internal/core"
	"github.com/courseflow/courseflow/internal/core/engine"
	apperrors "github.com/courseflow/courseflow/internal/errors"
	"github.com/courseflow/courseflow/internal/metrics"
	"github.com/courseflow/courseflow/internal/observability"
	"github.com/courseflow/courseflow/internal/server/handlers"
	servermw "github.com/courseflow/courseflow/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.opts.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)

	s.router.Method(http.MethodGet, "/metrics", newMetricsProxy(s.opts.MetricsPort))

	if s.opts.Webhook != nil {
		s.router.Method(http.MethodPost, "/api/webhooks/billing", s.opts.Webhook)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(s.opts.Verifier))

		if b := s.opts.Billing; b != nil {
			r.With(s.limit(engine.RouteCheckout)).Post("/api/billing/checkout", b.Checkout)
			r.With(s.limit(engine.RoutePortal)).Get("/api/billing/portal", b.Portal)
		}

		if u := s.opts.Usage; u != nil {
			r.With(s.limit(engine.RouteUsage)).Get("/api/usage", u.Usage)
			r.With(s.limit(engine.RouteAbuseCheck)).Get("/api/usage/abuse-check", u.AbuseCheck)
			r.With(s.limit(engine.RouteDedupStats)).Get("/api/files/dedup-stats", u.DedupStats)
			r.With(auth.RequireRole(auth.RoleAdmin), s.limit(engine.RouteAdminAbuse)).Get("/api/admin/abuse", u.AdminAbuse)
		}
	})

	// Admin signal endpoint (optional, requires COURSEFLOW_ADMIN_TOKEN)
	s.registerAdminEndpoint()
}

// limit keys the route limiter on the session user, falling back to the
// client address.
func (s *Server) limit(route string) func(http.Handler) http.Handler {
	return servermw.RateLimit(servermw.RateLimitConfig{
		Limiter:  s.opts.Limiter,
		Route:    route,
		Identify: auth.CallerID,
		OnLimited: func(w http.ResponseWriter, r *http.Request, result core.RateLimitResult) {
			apperrors.RespondRateLimited(w, r, servermw.RateLimitMessage)
		},
		OnDecision: func(route string, result core.RateLimitResult) {
			metrics.RecordRateLimitDecision(route, result.Allowed)
		},
	})
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	identity, _ := appid.Get(context.Background())
	envPrefix := appid.EnvPrefix
	if identity != nil && identity.EnvPrefix != "" {
		envPrefix = identity.EnvPrefix
	}

	adminToken := os.Getenv(envPrefix + "ADMIN_TOKEN")
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no " + envPrefix + "ADMIN_TOKEN set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10, // per minute
		RateBurst: 5,
		Manager:   nil,
	})

	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
