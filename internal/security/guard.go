// Package security implements the in-process throttling and session
// security core: sliding-window rate limiting, progressive penalties,
// brute-force lockout, token blacklisting, session lifecycle and
// suspicious activity detection.
//
// Every store is safe for concurrent use. Read-modify-write on a key is
// atomic with respect to other callers on the same key; unrelated keys are
// spread over independently locked shards. No operation performs I/O.
package security

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bvanengelen78/guardrail/internal/background"
	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/models"
)

// Guard owns every security store. Construct one per process and inject it
// into the request handling layer.
type Guard struct {
	config Config
	clock  clock.Clock
	logger *slog.Logger

	windows   *WindowCounter
	penalties *PenaltyLedger
	lockouts  *LockoutTracker
	blacklist *TokenBlacklist
	sessions  *SessionStore
	detector  *ActivityDetector
}

// New validates config and builds all stores
func New(config Config, clk clock.Clock, logger *slog.Logger) (*Guard, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Guard{
		config:    config,
		clock:     clk,
		logger:    logger,
		windows:   NewWindowCounter(clk, config.Shards),
		penalties: NewPenaltyLedger(clk, config.Penalty, config.Shards),
		lockouts:  NewLockoutTracker(clk, config.Lockout, config.Shards, logger),
		blacklist: NewTokenBlacklist(clk, config.Blacklist, config.Shards),
		sessions:  NewSessionStore(clk, config.Session, config.Shards),
		detector:  NewActivityDetector(clk, config.Detector, config.Shards),
	}, nil
}

func (g *Guard) Windows() *WindowCounter     { return g.windows }
func (g *Guard) Penalties() *PenaltyLedger   { return g.penalties }
func (g *Guard) Lockouts() *LockoutTracker   { return g.lockouts }
func (g *Guard) Blacklist() *TokenBlacklist  { return g.blacklist }
func (g *Guard) Sessions() *SessionStore     { return g.sessions }
func (g *Guard) Detector() *ActivityDetector { return g.detector }
func (g *Guard) Clock() clock.Clock          { return g.clock }

// CheckRequest runs the sliding-window check for (endpoint, identifier) and
// escalates the penalty ledger when the request is rejected.
func (g *Guard) CheckRequest(endpoint, identifier string, rule models.RateLimitRule) (models.RateLimitDecision, error) {
	decision, err := g.windows.Check(pairKey(endpoint, identifier), rule.Window, rule.MaxRequests)
	if err != nil {
		return decision, fmt.Errorf("check %s: %w", endpoint, err)
	}
	if !decision.Allowed {
		decision.Penalty = g.penalties.Penalize(endpoint, identifier)
	}
	return decision, nil
}

// Observe feeds the activity detector. When escalation is enabled a
// suspicious report also counts as a failure against the identifier's IP
// lockout record.
func (g *Guard) Observe(endpoint, identifier, userAgent string) models.SuspicionReport {
	report := g.detector.Observe(endpoint, identifier, userAgent)
	if report.Suspicious && g.config.Detector.EscalateToLockout && identifier != "" {
		if _, err := g.lockouts.RecordFailure(models.LockoutTypeIP, identifier); err != nil {
			g.logger.Error("failed to escalate suspicious activity", slog.Any("error", err))
		}
	}
	return report
}

// Stats reports current store sizes. It has no side effects.
func (g *Guard) Stats() models.SecurityStats {
	lockoutRecords, activeLockouts := g.lockouts.Len()
	sessions, activeSessions := g.sessions.Len()
	endpoints, samples := g.detector.Len()

	return models.SecurityStats{
		RateWindows:        g.windows.Len(),
		Penalties:          g.penalties.Len(),
		LockoutRecords:     lockoutRecords,
		ActiveLockouts:     activeLockouts,
		BlacklistedTokens:  g.blacklist.Len(),
		Sessions:           sessions,
		ActiveSessions:     activeSessions,
		MonitoredEndpoints: endpoints,
		ActivitySamples:    samples,
	}
}

// Sweepers returns one janitor sweeper per store
func (g *Guard) Sweepers() []background.Sweeper {
	return []background.Sweeper{
		background.NewSweeper("rate_windows", func(context.Context) (int, error) {
			return g.windows.Sweep(), nil
		}),
		background.NewSweeper("penalties", func(context.Context) (int, error) {
			return g.penalties.Sweep(), nil
		}),
		background.NewSweeper("lockouts", func(context.Context) (int, error) {
			return g.lockouts.Sweep(), nil
		}),
		background.NewSweeper("token_blacklist", func(context.Context) (int, error) {
			expired, evicted := g.blacklist.Sweep()
			if evicted > 0 {
				g.logger.Warn("token blacklist over capacity, evicted soonest-expiring entries",
					slog.Int("evicted", evicted),
					slog.Int("max_entries", g.config.Blacklist.MaxEntries))
			}
			return expired + evicted, nil
		}),
		background.NewSweeper("activity_detector", func(context.Context) (int, error) {
			return g.detector.Sweep(), nil
		}),
		background.NewSweeper("sessions", func(context.Context) (int, error) {
			return g.sessions.Sweep(), nil
		}),
	}
}
