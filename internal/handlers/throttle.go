package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bvanengelen78/guardrail/internal/models"
	pkghttp "github.com/bvanengelen78/guardrail/pkg/http"
)

// ThrottleServiceInterface defines the rate limit, lockout and activity
// operations exposed over HTTP
type ThrottleServiceInterface interface {
	Check(ctx context.Context, endpoint, identifier string, rule models.RateLimitRule) (models.RateLimitDecision, error)
	LockoutStatus(lockoutType models.LockoutType, identifier string) (models.LockoutStatus, error)
	RecordFailure(ctx context.Context, lockoutType models.LockoutType, identifier string) (models.LockoutStatus, error)
	ClearFailures(lockoutType models.LockoutType, identifier string) error
	Observe(ctx context.Context, endpoint, identifier, userAgent string) models.SuspicionReport
	Stats() models.SecurityStats
}

// ThrottleHandler serves the /v1/ratelimit, /v1/lockout, /v1/activity and
// /v1/stats endpoints
type ThrottleHandler struct {
	service ThrottleServiceInterface
	logger  *slog.Logger
}

func NewThrottleHandler(service ThrottleServiceInterface, logger *slog.Logger) *ThrottleHandler {
	return &ThrottleHandler{service: service, logger: logger}
}

// Request DTOs

type RateLimitCheckRequest struct {
	Endpoint    string `json:"endpoint" validate:"required,max=512"`
	Identifier  string `json:"identifier" validate:"required,max=512"`
	WindowMs    int64  `json:"windowMs" validate:"gt=0"`
	MaxRequests int    `json:"maxRequests" validate:"gt=0"`
}

type LockoutRequest struct {
	Type       string `json:"type" validate:"required,oneof=user ip"`
	Identifier string `json:"identifier" validate:"required,max=512"`
}

type ObserveRequest struct {
	Endpoint   string `json:"endpoint" validate:"required,max=512"`
	Identifier string `json:"identifier" validate:"max=512"`
	UserAgent  string `json:"userAgent" validate:"max=1024"`
}

// Response DTOs

type RateLimitCheckResponse struct {
	Allowed    bool   `json:"allowed"`
	Remaining  int    `json:"remaining"`
	ResetAt    *int64 `json:"resetAt"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	PenaltyMs  int64  `json:"penaltyMs,omitempty"`
}

type LockoutResponse struct {
	Locked       bool   `json:"locked"`
	LockoutUntil *int64 `json:"lockoutUntil,omitempty"`
	Attempts     int    `json:"attempts"`
	LockoutCount int    `json:"lockoutCount"`
}

type ObserveResponse struct {
	Suspicious bool     `json:"suspicious"`
	Reasons    []string `json:"reasons"`
}

func lockoutResponse(st models.LockoutStatus) LockoutResponse {
	return LockoutResponse{
		Locked:       st.Locked,
		LockoutUntil: epochMillis(st.LockoutUntil),
		Attempts:     st.Attempts,
		LockoutCount: st.LockoutCount,
	}
}

// CheckRateLimit handles POST /v1/ratelimit/check. A denial is answered
// with 429, a Retry-After header and the decision body.
func (h *ThrottleHandler) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	var req RateLimitCheckRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	rule := models.RateLimitRule{
		Window:      time.Duration(req.WindowMs) * time.Millisecond,
		MaxRequests: req.MaxRequests,
	}
	decision, err := h.service.Check(r.Context(), req.Endpoint, req.Identifier, rule)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := RateLimitCheckResponse{
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
		ResetAt:   epochMillis(decision.ResetAt),
	}
	if decision.Allowed {
		pkghttp.WriteJSON(w, http.StatusOK, resp)
		return
	}

	resp.RetryAfter = decision.RetryAfterSeconds()
	resp.PenaltyMs = decision.Penalty.Milliseconds()
	pkghttp.SetRetryAfter(w, resp.RetryAfter)
	pkghttp.WriteJSON(w, http.StatusTooManyRequests, resp)
}

// CheckLockout handles POST /v1/lockout/check
func (h *ThrottleHandler) CheckLockout(w http.ResponseWriter, r *http.Request) {
	var req LockoutRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	st, err := h.service.LockoutStatus(models.LockoutType(req.Type), req.Identifier)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, lockoutResponse(st))
}

// RecordFailure handles POST /v1/lockout/failure
func (h *ThrottleHandler) RecordFailure(w http.ResponseWriter, r *http.Request) {
	var req LockoutRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	st, err := h.service.RecordFailure(r.Context(), models.LockoutType(req.Type), req.Identifier)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, lockoutResponse(st))
}

// ClearFailures handles POST /v1/lockout/clear
func (h *ThrottleHandler) ClearFailures(w http.ResponseWriter, r *http.Request) {
	var req LockoutRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.ClearFailures(models.LockoutType(req.Type), req.Identifier); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Observe handles POST /v1/activity/observe
func (h *ThrottleHandler) Observe(w http.ResponseWriter, r *http.Request) {
	var req ObserveRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	report := h.service.Observe(r.Context(), req.Endpoint, req.Identifier, req.UserAgent)
	reasons := report.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, ObserveResponse{Suspicious: report.Suspicious, Reasons: reasons})
}

// Stats handles GET /v1/stats
func (h *ThrottleHandler) Stats(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Stats())
}

func (h *ThrottleHandler) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrInvalidConfig) {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	h.logger.Error("throttle operation failed", slog.Any("error", err))
	pkghttp.WriteInternalError(w, "Internal server error")
}
