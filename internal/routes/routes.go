package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bvanengelen78/guardrail/internal/auth"
	"github.com/bvanengelen78/guardrail/internal/handlers"
	"github.com/bvanengelen78/guardrail/internal/middleware"
	"github.com/bvanengelen78/guardrail/internal/models"
	pkghttp "github.com/bvanengelen78/guardrail/pkg/http"
)

// Dependencies groups everything the router needs
type Dependencies struct {
	Env            string
	RequestsPerMin int
	LoginRule      models.RateLimitRule

	Throttle  *handlers.ThrottleHandler
	Sessions  *handlers.SessionHandler
	Blacklist *handlers.BlacklistHandler
	Auth      *handlers.AuthHandler
	Health    *handlers.HealthHandler
	Metrics   http.Handler // optional scrape endpoint

	Throttler      middleware.RequestThrottler
	Tokens         *auth.TokenManager
	Revocations    auth.BlacklistChecker
	SessionCheck   auth.SessionValidator
	ServiceToken   string // bearer credential for /v1; empty rejects every call
	IPs            *pkghttp.IPResolver
	Logger         *slog.Logger
	HandlerTimeout time.Duration
}

// NewRouter builds the HTTP router with the global middleware stack. Client
// addresses come from deps.IPs, which only believes forwarding headers from
// trusted proxies.
func NewRouter(deps Dependencies) chi.Router {
	timeout := deps.HandlerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: deps.Env}))
	router.Use(middleware.SecureLogger(deps.Logger))
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(timeout))

	RegisterRoutes(router, deps)
	return router
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.Get("/health", deps.Health.Health)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	router.Group(func(r chi.Router) {
		if deps.RequestsPerMin > 0 {
			r.Use(middleware.RateLimitByIP(deps.RequestsPerMin, deps.IPs))
		}

		r.With(
			middleware.ObserveActivity(deps.Throttler, "/auth/login", deps.IPs),
			middleware.EndpointRateLimit(deps.Throttler, "/auth/login", deps.LoginRule, deps.IPs, deps.Logger),
		).Post("/auth/login", deps.Auth.Login)

		// Protected routes - authentication required
		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware(deps.Tokens, deps.Revocations, deps.SessionCheck, deps.IPs))
			r.Post("/auth/logout", deps.Auth.Logout)
		})

		// Internal RPC surface, never reachable with end-user credentials
		r.Route("/v1", func(r chi.Router) {
			r.Use(auth.ServiceTokenMiddleware(deps.ServiceToken))

			r.Post("/ratelimit/check", deps.Throttle.CheckRateLimit)

			r.Post("/lockout/check", deps.Throttle.CheckLockout)
			r.Post("/lockout/failure", deps.Throttle.RecordFailure)
			r.Post("/lockout/clear", deps.Throttle.ClearFailures)

			r.Post("/sessions", deps.Sessions.Create)
			r.Post("/sessions/validate", deps.Sessions.Validate)
			r.Delete("/sessions/{id}", deps.Sessions.Invalidate)
			r.Post("/sessions/{id}/rotate", deps.Sessions.Rotate)
			r.Delete("/users/{userId}/sessions", deps.Sessions.InvalidateAllForUser)

			r.Post("/blacklist", deps.Blacklist.Add)
			r.Get("/blacklist/{token}", deps.Blacklist.Check)

			r.Post("/activity/observe", deps.Throttle.Observe)
			r.Get("/stats", deps.Throttle.Stats)
		})
	})
}
