package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Security audit event types
const (
	EventLoginSuccess   = "login_success"
	EventLoginFailure   = "login_failure"
	EventLogout         = "logout"
	EventRateLimited    = "rate_limited"
	EventLockout        = "lockout"
	EventSessionEvicted = "session_evicted"
	EventSuspicious     = "suspicious_activity"
	EventTokenRevoked   = "token_revoked"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger emits the security event contract as structured log records.
// Persistence of these records is left to the log pipeline.
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Log writes event at info level on success and warn level otherwise
func (al *AuditLogger) Log(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogLoginAttempt records the outcome of a credential check
func (al *AuditLogger) LogLoginAttempt(email, ipAddress, userAgent string, success bool, reason string) {
	eventType := EventLoginSuccess
	if !success {
		eventType = EventLoginFailure
	}
	al.Log(AuditEvent{
		EventType:     eventType,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		Success:       success,
		FailureReason: reason,
		Metadata:      map[string]string{"email": SanitizedEmail(email)},
	})
}

// LogRateLimited records a rejected request and the penalty assigned to it
func (al *AuditLogger) LogRateLimited(endpoint, identifier string, retryAfter, penalty time.Duration) {
	al.Log(AuditEvent{
		EventType:     EventRateLimited,
		IPAddress:     identifier,
		FailureReason: "rate_limit_exceeded",
		Metadata: map[string]string{
			"endpoint":    endpoint,
			"retry_after": retryAfter.String(),
			"penalty":     penalty.String(),
		},
	})
}

// LogLockout records an identifier entering lockout
func (al *AuditLogger) LogLockout(lockoutType, identifier string, until time.Time, lockoutCount int) {
	al.Log(AuditEvent{
		EventType:     EventLockout,
		FailureReason: "too_many_failed_attempts",
		Metadata: map[string]string{
			"lockout_type":  lockoutType,
			"identifier":    identifier,
			"locked_until":  until.UTC().Format(time.RFC3339),
			"lockout_count": strconv.Itoa(lockoutCount),
		},
	})
}

// LogSessionEvicted records a session displaced by the concurrent session cap
func (al *AuditLogger) LogSessionEvicted(userID, sessionID string) {
	al.Log(AuditEvent{
		EventType:     EventSessionEvicted,
		UserID:        userID,
		FailureReason: "concurrent_session_limit",
		Metadata:      map[string]string{"session_id": sessionID},
	})
}

// LogSuspicious records a suspicious activity report
func (al *AuditLogger) LogSuspicious(endpoint, identifier, userAgent string, reasons []string) {
	al.Log(AuditEvent{
		EventType:     EventSuspicious,
		IPAddress:     identifier,
		UserAgent:     userAgent,
		FailureReason: strings.Join(reasons, ","),
		Metadata:      map[string]string{"endpoint": endpoint},
	})
}

// LogTokenRevoked records a token added to the blacklist
func (al *AuditLogger) LogTokenRevoked(userID, tokenID, reason string) {
	al.Log(AuditEvent{
		EventType: EventTokenRevoked,
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"jti": tokenID, "reason": reason},
	})
}
