package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvanengelen78/guardrail/internal/background"
	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/instrumentation"
	"github.com/bvanengelen78/guardrail/internal/models"
	"github.com/bvanengelen78/guardrail/internal/security"
	pkglogger "github.com/bvanengelen78/guardrail/pkg/logger"
)

// RevocationRepository persists revoked tokens
type RevocationRepository interface {
	Revoke(ctx context.Context, token models.RevokedToken) error
	ListActive(ctx context.Context, now time.Time) ([]models.RevokedToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RevocationService owns token revocation. The in-memory blacklist is
// authoritative; the repository, when configured, lets revocations survive
// a restart.
type RevocationService struct {
	blacklist *security.TokenBlacklist
	repo      RevocationRepository
	clock     clock.Clock
	audit     *pkglogger.AuditLogger
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
}

// NewRevocationService creates a new RevocationService. repo may be nil.
func NewRevocationService(blacklist *security.TokenBlacklist, repo RevocationRepository, clk clock.Clock, audit *pkglogger.AuditLogger, metrics *instrumentation.Metrics, logger *slog.Logger) *RevocationService {
	if clk == nil {
		clk = clock.System()
	}
	return &RevocationService{
		blacklist: blacklist,
		repo:      repo,
		clock:     clk,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
	}
}

// Revoke blacklists tokenID until expiresAt. A persistence failure is logged
// and does not undo the in-memory revocation.
func (s *RevocationService) Revoke(ctx context.Context, tokenID, userID string, expiresAt time.Time, reason string) error {
	if err := s.blacklist.Add(tokenID, expiresAt); err != nil {
		return err
	}

	s.metrics.RecordTokenRevoked(ctx, reason)
	s.audit.LogTokenRevoked(userID, tokenID, reason)

	if s.repo == nil {
		return nil
	}
	err := s.repo.Revoke(ctx, models.RevokedToken{
		JTI:       tokenID,
		UserID:    userID,
		ExpiresAt: expiresAt,
		Reason:    reason,
		RevokedAt: s.clock.Now(),
	})
	if err != nil {
		s.logger.Error("failed to persist token revocation",
			slog.String("jti", tokenID),
			slog.Any("error", err))
	}
	return nil
}

// IsBlacklisted reports whether tokenID is revoked
func (s *RevocationService) IsBlacklisted(tokenID string) bool {
	return s.blacklist.IsBlacklisted(tokenID)
}

// Restore loads unexpired revocations from the repository into the blacklist
func (s *RevocationService) Restore(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}

	tokens, err := s.repo.ListActive(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to load revoked tokens: %w", err)
	}

	restored := 0
	for _, t := range tokens {
		if err := s.blacklist.Add(t.JTI, t.ExpiresAt); err != nil {
			s.logger.Warn("skipping unusable revoked token", slog.Any("error", err))
			continue
		}
		restored++
	}

	s.logger.Info("restored token revocations", slog.Int("count", restored))
	return restored, nil
}

// Sweeper deletes expired rows from the repository. It is a no-op without one.
func (s *RevocationService) Sweeper() background.Sweeper {
	return background.NewSweeper("revoked_tokens", func(ctx context.Context) (int, error) {
		if s.repo == nil {
			return 0, nil
		}
		n, err := s.repo.DeleteExpired(ctx, s.clock.Now())
		return int(n), err
	})
}
