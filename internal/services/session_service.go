package services

import (
	"context"
	"log/slog"

	"github.com/bvanengelen78/guardrail/internal/instrumentation"
	"github.com/bvanengelen78/guardrail/internal/models"
	"github.com/bvanengelen78/guardrail/internal/security"
	pkglogger "github.com/bvanengelen78/guardrail/pkg/logger"
)

// SessionService manages login sessions on top of the guard's session store
type SessionService struct {
	store   *security.SessionStore
	audit   *pkglogger.AuditLogger
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewSessionService creates a new SessionService and registers the
// concurrent-session eviction hook on store.
func NewSessionService(store *security.SessionStore, audit *pkglogger.AuditLogger, metrics *instrumentation.Metrics, logger *slog.Logger) *SessionService {
	s := &SessionService{
		store:   store,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
	}
	store.OnEvict(s.evicted)
	return s
}

func (s *SessionService) evicted(session models.Session) {
	s.metrics.RecordSessionEvicted(context.Background())
	s.audit.LogSessionEvicted(session.UserID, session.ID)
}

// Create opens a session for userID
func (s *SessionService) Create(userID, userAgent, ipAddress string, rememberMe bool) (*models.Session, error) {
	session, err := s.store.Create(userID, userAgent, ipAddress, rememberMe)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("session created",
		slog.String("user_id", userID),
		slog.Bool("remember_me", rememberMe))
	return session, nil
}

// Validate checks a session against the caller's user agent and address
func (s *SessionService) Validate(sessionID, userAgent, ipAddress string) models.SessionValidation {
	v := s.store.Validate(sessionID, userAgent, ipAddress)
	if !v.Valid && (v.Reason == models.SessionReasonIPMismatch || v.Reason == models.SessionReasonUserAgentMismatch) {
		s.logger.Warn("session binding mismatch", slog.String("reason", v.Reason))
	}
	return v
}

// Invalidate ends one session. It reports whether an active session was ended.
func (s *SessionService) Invalidate(sessionID string) bool {
	return s.store.Invalidate(sessionID)
}

// InvalidateAllForUser ends every active session of userID
func (s *SessionService) InvalidateAllForUser(userID string) int {
	count := s.store.InvalidateAllForUser(userID)
	if count > 0 {
		s.logger.Info("sessions invalidated for user",
			slog.String("user_id", userID),
			slog.Int("count", count))
	}
	return count
}

// Rotate replaces sessionID with a fresh id
func (s *SessionService) Rotate(sessionID string) (*models.Session, error) {
	return s.store.Rotate(sessionID)
}

// ListForUser returns the active sessions of userID
func (s *SessionService) ListForUser(userID string) []models.Session {
	return s.store.ListForUser(userID)
}
