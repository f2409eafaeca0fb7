package security

import (
	"io"
	"log/slog"
	"time"

	"github.com/bvanengelen78/guardrail/internal/clock"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClock() *clock.Fake {
	return clock.NewFake(testEpoch)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
