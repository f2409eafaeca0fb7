// Package instrumentation exposes OpenTelemetry counters for security
// decisions and gauges for the size of every in-memory store.
package instrumentation

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "github.com/bvanengelen78/guardrail"

// ExporterPrometheus serves collected metrics from MetricsHandler
const ExporterPrometheus = "prometheus"

// Config holds instrumentation configuration
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Enabled selects the SDK meter provider. When false a no-op provider is
	// used and every recording call is free.
	Enabled bool

	// MetricsExporter is "prometheus" or empty. Ignored when Reader is set.
	MetricsExporter string

	// Reader receives collected metrics. Tests pass a ManualReader.
	Reader sdkmetric.Reader
}

// Instrumentation owns the meter provider and the pre-built instruments
type Instrumentation struct {
	meterProvider metric.MeterProvider
	metrics       *Metrics
	handler       http.Handler

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = "guardrail"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = "unknown"
	}

	inst := &Instrumentation{}

	if config.Enabled {
		res, err := resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}

		opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
		switch {
		case config.Reader != nil:
			opts = append(opts, sdkmetric.WithReader(config.Reader))
		case config.MetricsExporter == ExporterPrometheus:
			registry := prometheus.NewRegistry()
			exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
			if err != nil {
				return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
			}
			opts = append(opts, sdkmetric.WithReader(exporter))
			inst.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		case config.MetricsExporter != "":
			return nil, fmt.Errorf("unsupported metrics exporter %q", config.MetricsExporter)
		}
		mp := sdkmetric.NewMeterProvider(opts...)
		inst.meterProvider = mp
		inst.shutdownFuncs = append(inst.shutdownFuncs, mp.Shutdown)
	} else {
		inst.meterProvider = noop.NewMeterProvider()
	}

	m, err := newMetrics(inst.meterProvider.Meter(meterName))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	inst.metrics = m

	return inst, nil
}

// Metrics returns the instrument holder
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// MetricsHandler returns the scrape handler, or nil when no pull exporter is
// configured.
func (i *Instrumentation) MetricsHandler() http.Handler {
	return i.handler
}

// MeterProvider returns the underlying meter provider
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// Shutdown flushes and stops the provider. Safe to call more than once.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error
	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})
	return shutdownErr
}
