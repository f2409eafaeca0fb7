package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bvanengelen78/guardrail/internal/models"
)

// Metrics holds all metric instruments. A nil *Metrics records nothing.
type Metrics struct {
	RateLimitDecisions metric.Int64Counter
	LockoutsTriggered  metric.Int64Counter
	LoginAttempts      metric.Int64Counter
	SessionsEvicted    metric.Int64Counter
	TokensRevoked      metric.Int64Counter
	SuspiciousActivity metric.Int64Counter
	StoreSize          metric.Int64ObservableGauge

	meter metric.Meter

	// endpoints that may appear as a label; written only before serving
	endpoints map[string]struct{}
}

// LabelOther replaces caller-supplied label values outside the known set
const LabelOther = "other"

var revokeReasons = map[string]struct{}{
	"logout":      {},
	"manual":      {},
	"compromised": {},
	"rotation":    {},
}

// TrackEndpoints lists the endpoints reported by name on rate limit
// decisions. Any other endpoint is counted as LabelOther. Call before
// serving traffic.
func (m *Metrics) TrackEndpoints(endpoints ...string) {
	if m == nil {
		return
	}
	for _, e := range endpoints {
		m.endpoints[e] = struct{}{}
	}
}

func bounded(v string, known map[string]struct{}) string {
	if _, ok := known[v]; ok {
		return v
	}
	return LabelOther
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter, endpoints: make(map[string]struct{})}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.RateLimitDecisions, "guardrail.ratelimit.decisions", "Sliding window decisions by outcome", "{decision}"},
		{&m.LockoutsTriggered, "guardrail.lockout.triggered", "Identifiers that entered lockout", "{lockout}"},
		{&m.LoginAttempts, "guardrail.login.attempts", "Login attempts by outcome", "{attempt}"},
		{&m.SessionsEvicted, "guardrail.session.evicted", "Sessions evicted by the concurrent session cap", "{session}"},
		{&m.TokensRevoked, "guardrail.token.revoked", "Tokens added to the blacklist", "{token}"},
		{&m.SuspiciousActivity, "guardrail.activity.suspicious", "Suspicious activity reports by reason", "{report}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	m.StoreSize, err = meter.Int64ObservableGauge(
		"guardrail.store.size",
		metric.WithDescription("Entries held by each in-memory security store"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store.size gauge: %w", err)
	}

	return m, nil
}

// RegisterStatsCallback reports store sizes from stats on every collection
func (m *Metrics) RegisterStatsCallback(stats func() models.SecurityStats) error {
	if m == nil {
		return nil
	}
	_, err := m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		for store, v := range map[string]int{
			"rate_windows":     s.RateWindows,
			"penalties":        s.Penalties,
			"lockout_records":  s.LockoutRecords,
			"active_lockouts":  s.ActiveLockouts,
			"blacklist":        s.BlacklistedTokens,
			"sessions":         s.Sessions,
			"active_sessions":  s.ActiveSessions,
			"activity_samples": s.ActivitySamples,
		} {
			o.ObserveInt64(m.StoreSize, int64(v), metric.WithAttributes(attribute.String("store", store)))
		}
		return nil
	}, m.StoreSize)
	return err
}

func (m *Metrics) RecordRateLimit(ctx context.Context, endpoint string, allowed bool) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", bounded(endpoint, m.endpoints)),
		attribute.Bool("allowed", allowed),
	))
}

func (m *Metrics) RecordLockout(ctx context.Context, lockoutType models.LockoutType) {
	if m == nil {
		return
	}
	m.LockoutsTriggered.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(lockoutType))))
}

func (m *Metrics) RecordLogin(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordSessionEvicted(ctx context.Context) {
	if m == nil {
		return
	}
	m.SessionsEvicted.Add(ctx, 1)
}

func (m *Metrics) RecordTokenRevoked(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.TokensRevoked.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", bounded(reason, revokeReasons))))
}

func (m *Metrics) RecordSuspicious(ctx context.Context, reasons []string) {
	if m == nil {
		return
	}
	for _, r := range reasons {
		m.SuspiciousActivity.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", r)))
	}
}
