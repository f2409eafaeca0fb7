package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bvanengelen78/guardrail/internal/instrumentation"
	"github.com/bvanengelen78/guardrail/internal/models"
	"github.com/bvanengelen78/guardrail/internal/security"
	pkglogger "github.com/bvanengelen78/guardrail/pkg/logger"
)

// RateLimitService applies the guard's throttling and lockout decisions and
// reports them to the audit log, metrics and operator alerts.
type RateLimitService struct {
	guard   *security.Guard
	audit   *pkglogger.AuditLogger
	metrics *instrumentation.Metrics
	alerts  Alerter
	logger  *slog.Logger
}

// NewRateLimitService creates a new RateLimitService. metrics and alerts may be nil.
func NewRateLimitService(guard *security.Guard, audit *pkglogger.AuditLogger, metrics *instrumentation.Metrics, alerts Alerter, logger *slog.Logger) *RateLimitService {
	if alerts == nil {
		alerts = NoopAlerter{}
	}
	return &RateLimitService{
		guard:   guard,
		audit:   audit,
		metrics: metrics,
		alerts:  alerts,
		logger:  logger,
	}
}

// Check runs the sliding window for (endpoint, identifier) under rule.
// Invalid rules surface models.ErrInvalidConfig.
func (s *RateLimitService) Check(ctx context.Context, endpoint, identifier string, rule models.RateLimitRule) (models.RateLimitDecision, error) {
	decision, err := s.guard.CheckRequest(endpoint, identifier, rule)
	if err != nil {
		return decision, err
	}

	s.metrics.RecordRateLimit(ctx, endpoint, decision.Allowed)
	if !decision.Allowed {
		s.audit.LogRateLimited(endpoint, identifier, decision.RetryAfter, decision.Penalty)
	}
	return decision, nil
}

// LockoutStatus reports whether identifier is locked
func (s *RateLimitService) LockoutStatus(lockoutType models.LockoutType, identifier string) (models.LockoutStatus, error) {
	return s.guard.Lockouts().IsLocked(lockoutType, identifier)
}

// RecordFailure counts a failed attempt. When the failure trips a new
// lockout it is audited, counted and sent to operators.
func (s *RateLimitService) RecordFailure(ctx context.Context, lockoutType models.LockoutType, identifier string) (models.LockoutStatus, error) {
	before, err := s.guard.Lockouts().IsLocked(lockoutType, identifier)
	if err != nil {
		return before, err
	}

	status, err := s.guard.Lockouts().RecordFailure(lockoutType, identifier)
	if err != nil {
		return status, err
	}

	if status.Locked && !before.Locked {
		s.metrics.RecordLockout(ctx, lockoutType)
		s.audit.LogLockout(string(lockoutType), identifier, status.LockoutUntil, status.LockoutCount)
		s.alerts.Notify(Alert{
			Subject: fmt.Sprintf("%s lockout triggered", lockoutType),
			Body: fmt.Sprintf("Identifier %s was locked until %s after repeated failures (lockout #%d).",
				identifier, status.LockoutUntil.UTC().Format(time.RFC3339), status.LockoutCount),
		})
	}
	return status, nil
}

// ClearFailures resets the failure count for identifier
func (s *RateLimitService) ClearFailures(lockoutType models.LockoutType, identifier string) error {
	return s.guard.Lockouts().Clear(lockoutType, identifier)
}

// Observe feeds the activity detector and reports suspicious traffic
func (s *RateLimitService) Observe(ctx context.Context, endpoint, identifier, userAgent string) models.SuspicionReport {
	report := s.guard.Observe(endpoint, identifier, userAgent)
	if !report.Suspicious {
		return report
	}

	s.metrics.RecordSuspicious(ctx, report.Reasons)
	s.audit.LogSuspicious(endpoint, identifier, userAgent, report.Reasons)
	s.alerts.Notify(Alert{
		Subject: "suspicious activity on " + endpoint,
		Body: fmt.Sprintf("Identifier %s flagged on %s: %s.",
			identifier, endpoint, strings.Join(report.Reasons, ", ")),
	})
	return report
}

// Stats reports current store sizes
func (s *RateLimitService) Stats() models.SecurityStats {
	return s.guard.Stats()
}
