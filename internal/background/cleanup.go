package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sweeper evicts expired entries from one store
type Sweeper interface {
	Name() string
	Sweep(ctx context.Context) (int, error)
}

type sweeperFunc struct {
	name string
	fn   func(ctx context.Context) (int, error)
}

func (s sweeperFunc) Name() string                           { return s.name }
func (s sweeperFunc) Sweep(ctx context.Context) (int, error) { return s.fn(ctx) }

// NewSweeper adapts a function into a named Sweeper
func NewSweeper(name string, fn func(ctx context.Context) (int, error)) Sweeper {
	return sweeperFunc{name: name, fn: fn}
}

// Janitor periodically sweeps every registered store. A failing or
// panicking sweeper is logged and does not stop the others.
type Janitor struct {
	sweepers []Sweeper
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

const defaultInterval = time.Minute

// NewJanitor creates a new janitor. A non-positive interval falls back to
// one minute.
func NewJanitor(logger *slog.Logger, interval time.Duration, sweepers ...Sweeper) *Janitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Janitor{
		sweepers: sweepers,
		logger:   logger,
		interval: interval,
		timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Register adds sweepers. Call before Start.
func (j *Janitor) Register(sweepers ...Sweeper) {
	j.sweepers = append(j.sweepers, sweepers...)
}

// Start runs the sweep loop until Stop is called or ctx is cancelled
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on startup
	j.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-j.stopCh:
			j.logger.Info("janitor stopped")
			return
		case <-ctx.Done():
			j.logger.Info("janitor context cancelled")
			return
		}
	}
}

// SweepResult is the outcome of one sweeper in a pass
type SweepResult struct {
	Name    string
	Removed int
	Err     error
}

// RunOnce sweeps every store once and returns per-store results
func (j *Janitor) RunOnce(ctx context.Context) []SweepResult {
	results := make([]SweepResult, 0, len(j.sweepers))
	total := 0

	for _, s := range j.sweepers {
		res := j.sweepOne(ctx, s)
		results = append(results, res)
		if res.Err != nil {
			j.logger.Error("sweep failed",
				slog.String("store", res.Name),
				slog.Any("error", res.Err))
			continue
		}
		total += res.Removed
	}

	if total > 0 {
		j.logger.Info("janitor sweep completed", slog.Int("removed", total))
	}
	return results
}

func (j *Janitor) sweepOne(ctx context.Context, s Sweeper) (res SweepResult) {
	res.Name = s.Name()

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("sweeper %s panicked: %v", res.Name, p)
		}
	}()

	sweepCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	res.Removed, res.Err = s.Sweep(sweepCtx)
	return res
}

// Stop signals the janitor to stop. It is safe to call more than once.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}
