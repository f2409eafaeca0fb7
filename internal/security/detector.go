package security

import (
	"time"

	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/models"
)

const (
	minPatternSamples     = 10
	minUserAgentSamples   = 20
	intervalTolerance     = 100 * time.Millisecond
	automatedMeanInterval = time.Second
)

type activitySample struct {
	identifier string
	userAgent  string
	at         time.Time
}

type endpointActivity struct {
	samples []activitySample // ascending by time
}

func (a *endpointActivity) prune(cutoff time.Time) {
	i := 0
	for i < len(a.samples) && !a.samples[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		a.samples = append(a.samples[:0], a.samples[i:]...)
	}
}

// ActivityDetector scores recent request metadata per endpoint for signs of
// automated or distributed abuse. Its output is advisory.
type ActivityDetector struct {
	endpoints *shardedMap[*endpointActivity]
	config    DetectorConfig
	clock     clock.Clock
}

// NewActivityDetector creates an ActivityDetector
func NewActivityDetector(clk clock.Clock, config DetectorConfig, shards int) *ActivityDetector {
	return &ActivityDetector{
		endpoints: newShardedMap[*endpointActivity](shards),
		config:    config,
		clock:     clk,
	}
}

// Observe records a request against endpoint and reports whether the
// endpoint's recent traffic looks suspicious.
func (d *ActivityDetector) Observe(endpoint, identifier, userAgent string) models.SuspicionReport {
	now := d.clock.Now()
	var report models.SuspicionReport

	d.endpoints.with(endpoint, func(items map[string]*endpointActivity) {
		a, ok := items[endpoint]
		if !ok {
			a = &endpointActivity{}
			items[endpoint] = a
		}
		a.prune(now.Add(-d.config.Window))
		a.samples = append(a.samples, activitySample{identifier: identifier, userAgent: userAgent, at: now})
		if over := len(a.samples) - d.config.MaxSamplesPerEndpoint; over > 0 {
			a.samples = append(a.samples[:0], a.samples[over:]...)
		}
		report = d.score(a.samples)
	})

	return report
}

func (d *ActivityDetector) score(samples []activitySample) models.SuspicionReport {
	var reasons []string

	if len(samples) > d.config.RapidRequestThreshold {
		reasons = append(reasons, models.SuspicionRapidRequests)
	}

	identifiers := make(map[string]struct{})
	for _, s := range samples {
		identifiers[s.identifier] = struct{}{}
	}
	if len(identifiers) > d.config.DistributedThreshold {
		reasons = append(reasons, models.SuspicionDistributedAttack)
	}

	if looksAutomated(samples) {
		reasons = append(reasons, models.SuspicionAutomatedTraffic)
	}

	return models.SuspicionReport{Suspicious: len(reasons) > 0, Reasons: reasons}
}

// looksAutomated flags a single shared user agent across many samples, or
// near-constant sub-second spacing between requests.
func looksAutomated(samples []activitySample) bool {
	if len(samples) < minPatternSamples {
		return false
	}

	if len(samples) > minUserAgentSamples {
		same := true
		for _, s := range samples[1:] {
			if s.userAgent != samples[0].userAgent {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}

	intervals := make([]time.Duration, 0, len(samples)-1)
	var total time.Duration
	for i := 1; i < len(samples); i++ {
		iv := samples[i].at.Sub(samples[i-1].at)
		intervals = append(intervals, iv)
		total += iv
	}
	mean := total / time.Duration(len(intervals))
	if mean >= automatedMeanInterval {
		return false
	}
	for _, iv := range intervals {
		diff := iv - mean
		if diff < 0 {
			diff = -diff
		}
		if diff > intervalTolerance {
			return false
		}
	}
	return true
}

// Sweep discards samples outside the window and forgets idle endpoints
func (d *ActivityDetector) Sweep() int {
	cutoff := d.clock.Now().Add(-d.config.Window)
	return d.endpoints.sweep(func(_ string, a *endpointActivity) bool {
		a.prune(cutoff)
		return len(a.samples) == 0
	})
}

// Len returns the number of monitored endpoints and buffered samples
func (d *ActivityDetector) Len() (endpoints, samples int) {
	d.endpoints.each(func(_ string, a *endpointActivity) {
		endpoints++
		samples += len(a.samples)
	})
	return endpoints, samples
}
