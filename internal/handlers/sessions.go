package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bvanengelen78/guardrail/internal/models"
	pkghttp "github.com/bvanengelen78/guardrail/pkg/http"
)

// SessionServiceInterface defines session lifecycle operations
type SessionServiceInterface interface {
	Create(userID, userAgent, ipAddress string, rememberMe bool) (*models.Session, error)
	Validate(sessionID, userAgent, ipAddress string) models.SessionValidation
	Invalidate(sessionID string) bool
	InvalidateAllForUser(userID string) int
	Rotate(sessionID string) (*models.Session, error)
}

// SessionHandler serves /v1/sessions and /v1/users/{userId}/sessions
type SessionHandler struct {
	service SessionServiceInterface
	ips     *pkghttp.IPResolver
	logger  *slog.Logger
}

func NewSessionHandler(service SessionServiceInterface, ips *pkghttp.IPResolver, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: service, ips: ips, logger: logger}
}

// CreateSessionRequest opens a session. UserAgent and IPAddress default to
// the caller's when omitted.
type CreateSessionRequest struct {
	UserID     string `json:"userId" validate:"required,max=256"`
	UserAgent  string `json:"userAgent" validate:"max=1024"`
	IPAddress  string `json:"ipAddress" validate:"omitempty,ip"`
	RememberMe bool   `json:"rememberMe"`
}

type ValidateSessionRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	UserAgent string `json:"userAgent" validate:"max=1024"`
	IPAddress string `json:"ipAddress" validate:"omitempty,ip"`
}

type SessionResponse struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	UserAgent      string `json:"userAgent"`
	IPAddress      string `json:"ipAddress"`
	CreatedAt      *int64 `json:"createdAt"`
	LastAccessedAt *int64 `json:"lastAccessedAt"`
	ExpiresAt      *int64 `json:"expiresAt"`
	IsActive       bool   `json:"isActive"`
	RotationCount  int    `json:"rotationCount"`
}

type ValidateSessionResponse struct {
	Valid         bool             `json:"valid"`
	Reason        string           `json:"reason,omitempty"`
	NeedsRotation bool             `json:"needsRotation"`
	Session       *SessionResponse `json:"session,omitempty"`
}

func sessionResponse(s *models.Session) *SessionResponse {
	if s == nil {
		return nil
	}
	return &SessionResponse{
		ID:             s.ID,
		UserID:         s.UserID,
		UserAgent:      s.UserAgent,
		IPAddress:      s.IPAddress,
		CreatedAt:      epochMillis(s.CreatedAt),
		LastAccessedAt: epochMillis(s.LastAccessedAt),
		ExpiresAt:      epochMillis(s.ExpiresAt),
		IsActive:       s.IsActive,
		RotationCount:  s.RotationCount,
	}
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}
	if req.IPAddress == "" {
		req.IPAddress = h.ips.ClientIP(r)
	}

	session, err := h.service.Create(req.UserID, req.UserAgent, req.IPAddress, req.RememberMe)
	if err != nil {
		if errors.Is(err, models.ErrInvalidConfig) {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		h.logger.Error("failed to create session", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, sessionResponse(session))
}

// Validate handles POST /v1/sessions/validate. An invalid session is a
// normal answer, not an error status.
func (h *SessionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateSessionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	v := h.service.Validate(req.SessionID, req.UserAgent, req.IPAddress)
	pkghttp.WriteJSON(w, http.StatusOK, ValidateSessionResponse{
		Valid:         v.Valid,
		Reason:        v.Reason,
		NeedsRotation: v.NeedsRotation,
		Session:       sessionResponse(v.Session),
	})
}

// Invalidate handles DELETE /v1/sessions/{id}
func (h *SessionHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.service.Invalidate(id) {
		pkghttp.WriteNotFound(w, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateAllForUser handles DELETE /v1/users/{userId}/sessions
func (h *SessionHandler) InvalidateAllForUser(w http.ResponseWriter, r *http.Request) {
	count := h.service.InvalidateAllForUser(chi.URLParam(r, "userId"))
	pkghttp.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

// Rotate handles POST /v1/sessions/{id}/rotate
func (h *SessionHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Rotate(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrSessionInvalid) {
			pkghttp.WriteNotFound(w, "Session not found or inactive")
			return
		}
		h.logger.Error("failed to rotate session", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, sessionResponse(session))
}
