package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/bvanengelen78/guardrail/internal/models"
	pkghttp "github.com/bvanengelen78/guardrail/pkg/http"
)

// RateLimitByIP caps raw request volume per client IP using a fixed
// one-minute window. Forwarding headers are honoured only from trusted
// proxies. The limiter sets Retry-After on rejection.
func RateLimitByIP(requestsPerMinute int, ips *pkghttp.IPResolver) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ips.ClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, 0, "Rate limit exceeded")
		}),
	)
}

// RequestThrottler makes per-endpoint decisions for the middlewares below
type RequestThrottler interface {
	Check(ctx context.Context, endpoint, identifier string, rule models.RateLimitRule) (models.RateLimitDecision, error)
	Observe(ctx context.Context, endpoint, identifier, userAgent string) models.SuspicionReport
}

// EndpointRateLimit applies a sliding window per client IP to one endpoint.
// Repeat violators are told to wait for their escalating penalty when it
// exceeds the window's own retry time.
func EndpointRateLimit(throttler RequestThrottler, endpoint string, rule models.RateLimitRule, ips *pkghttp.IPResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := throttler.Check(r.Context(), endpoint, ips.ClientIP(r), rule)
			if err != nil {
				// fail closed
				logger.Error("endpoint rate limit check failed",
					slog.String("endpoint", endpoint),
					slog.Any("error", err))
				pkghttp.WriteServiceUnavailable(w, "Rate limiter unavailable")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				retry := decision.RetryAfterSeconds()
				penalty := models.RateLimitDecision{RetryAfter: decision.Penalty}
				if p := penalty.RetryAfterSeconds(); p > retry {
					retry = p
				}
				pkghttp.WriteTooManyRequests(w, retry, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ObserveActivity feeds every request on endpoint to the activity detector.
// It never blocks the request.
func ObserveActivity(throttler RequestThrottler, endpoint string, ips *pkghttp.IPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			throttler.Observe(r.Context(), endpoint, ips.ClientIP(r), r.UserAgent())
			next.ServeHTTP(w, r)
		})
	}
}
