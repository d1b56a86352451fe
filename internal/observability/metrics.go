package observability

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics for the orchestration core
type MetricsCollector struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *promclient.Registry

	// Provider call metrics
	providerCalls   metric.Int64Counter
	providerLatency metric.Float64Histogram
	breakerChanges  metric.Int64Counter
	degradedPicks   metric.Int64Counter

	// Configuration metrics
	configLookups metric.Int64Counter

	// Cost metrics
	estimatedCost metric.Float64Counter

	// Server for Prometheus scraping
	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"` // 0 = only served by the admin API
}

// NewMetricsCollector creates a new metrics collector backed by its own
// Prometheus registry.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("reelpipe")

	providerCalls, err := meter.Int64Counter(
		"reelpipe.provider.calls.total",
		metric.WithDescription("Total number of provider invocation attempts"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_calls counter: %w", err)
	}

	providerLatency, err := meter.Float64Histogram(
		"reelpipe.provider.latency",
		metric.WithDescription("Provider invocation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_latency histogram: %w", err)
	}

	breakerChanges, err := meter.Int64Counter(
		"reelpipe.breaker.transitions.total",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create breaker_transitions counter: %w", err)
	}

	degradedPicks, err := meter.Int64Counter(
		"reelpipe.selection.degraded.total",
		metric.WithDescription("Model selections that fell through every healthy tier"),
		metric.WithUnit("{selection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create degraded_selections counter: %w", err)
	}

	configLookups, err := meter.Int64Counter(
		"reelpipe.config.lookups.total",
		metric.WithDescription("Configuration resolutions by winning source"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create config_lookups counter: %w", err)
	}

	estimatedCost, err := meter.Float64Counter(
		"reelpipe.cost.estimated",
		metric.WithDescription("Estimated generation cost"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create estimated_cost counter: %w", err)
	}

	collector := &MetricsCollector{
		meter:           meter,
		provider:        provider,
		registry:        registry,
		providerCalls:   providerCalls,
		providerLatency: providerLatency,
		breakerChanges:  breakerChanges,
		degradedPicks:   degradedPicks,
		configLookups:   configLookups,
		estimatedCost:   estimatedCost,
	}

	if config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("failed to start prometheus server: %w", err)
		}
	}

	return collector, nil
}

// Handler returns the Prometheus scrape handler, or 404 when metrics are off.
func (m *MetricsCollector) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartPrometheusServer starts a standalone Prometheus metrics server
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	m.prometheusServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Prometheus server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics collector
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	if m.prometheusServer != nil {
		if err := m.prometheusServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	if m.provider != nil {
		return m.provider.Shutdown(ctx)
	}
	return nil
}

// RecordProviderCall records one invocation attempt against a provider.
func (m *MetricsCollector) RecordProviderCall(ctx context.Context, service, provider, model, status string, latency time.Duration) {
	if m == nil || m.providerCalls == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("status", status),
	}

	m.providerCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	if status == "success" {
		m.providerLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs[:3]...))
	}
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *MetricsCollector) RecordBreakerTransition(ctx context.Context, name, from, to string) {
	if m == nil || m.breakerChanges == nil {
		return
	}
	m.breakerChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordDegradedSelection records a selection that returned an unhealthy primary.
func (m *MetricsCollector) RecordDegradedSelection(ctx context.Context, service, provider string) {
	if m == nil || m.degradedPicks == nil {
		return
	}
	m.degradedPicks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("provider", provider),
	))
}

// RecordConfigLookup records which source satisfied a configuration lookup.
func (m *MetricsCollector) RecordConfigLookup(ctx context.Context, source string, cached bool) {
	if m == nil || m.configLookups == nil {
		return
	}
	m.configLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("cached", cached),
	))
}

// RecordEstimatedCost accumulates an estimated spend figure.
func (m *MetricsCollector) RecordEstimatedCost(ctx context.Context, service, provider string, cost float64) {
	if m == nil || m.estimatedCost == nil || cost <= 0 {
		return
	}
	m.estimatedCost.Add(ctx, cost, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("provider", provider),
	))
}
