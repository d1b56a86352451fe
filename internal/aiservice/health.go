package aiservice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"reelpipe/internal/config"
	reelerrors "reelpipe/internal/errors"
	"reelpipe/internal/logging"
	"reelpipe/internal/observability"
	"reelpipe/internal/providers"
)

const (
	defaultHealthInterval = 5 * time.Minute
	defaultProbeTimeout   = 10 * time.Second
	healthCacheSize       = 256
)

// HealthStatus is the last probe outcome for one key.
type HealthStatus struct {
	Key       string    `json:"key"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
	ErrorType string    `json:"error_type,omitempty"`
}

// HealthMonitor answers whether a configured model is usable, combining
// breaker state with cached probe results.
type HealthMonitor struct {
	invoker  *Invoker
	registry *providers.Registry
	resolver *config.Resolver
	cache    *expirable.LRU[string, HealthStatus]
	tracer   *observability.TracerProvider
	logger   logging.Logger
	now      func() time.Time
}

// HealthOption customizes a HealthMonitor.
type HealthOption func(*HealthMonitor)

// WithHealthClock injects the clock used to age cached results.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(m *HealthMonitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithHealthTracer opens a span per probe.
func WithHealthTracer(tp *observability.TracerProvider) HealthOption {
	return func(m *HealthMonitor) { m.tracer = tp }
}

// WithHealthLogger sets the logger.
func WithHealthLogger(logger logging.Logger) HealthOption {
	return func(m *HealthMonitor) { m.logger = logging.OrNop(logger) }
}

// NewHealthMonitor probes through invoker using providers from registry.
func NewHealthMonitor(invoker *Invoker, registry *providers.Registry, resolver *config.Resolver, opts ...HealthOption) *HealthMonitor {
	m := &HealthMonitor{
		invoker:  invoker,
		registry: registry,
		resolver: resolver,
		tracer:   observability.NoopTracerProvider(),
		logger:   logging.NewComponentLogger("health-monitor"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	ttl := defaultHealthInterval
	if resolver != nil {
		ttl = m.interval(context.Background())
	}
	m.cache = expirable.NewLRU[string, HealthStatus](healthCacheSize, nil, ttl)
	return m
}

func (m *HealthMonitor) interval(ctx context.Context) time.Duration {
	if m.resolver == nil {
		return defaultHealthInterval
	}
	return m.resolver.GetDuration(ctx, "ai.health.intervalSeconds", defaultHealthInterval, time.Second)
}

func (m *HealthMonitor) probeTimeout(ctx context.Context) time.Duration {
	if m.resolver == nil {
		return defaultProbeTimeout
	}
	return m.resolver.GetDuration(ctx, "ai.health.probeTimeoutSeconds", defaultProbeTimeout, time.Second)
}

// IsHealthy reports whether cfg can take traffic. An open breaker within
// its timeout answers false without probing. A half-open breaker ignores
// the cache and spends its single trial on a probe. Otherwise a cached
// result younger than the health interval is reused, and a stale or missing
// one triggers a probe whose outcome updates both the breaker and the cache.
func (m *HealthMonitor) IsHealthy(ctx context.Context, category providers.Category, cfg ModelConfig) bool {
	key := cfg.Key(category)
	breaker := m.invoker.Breakers().For(ctx, category, cfg)

	switch breaker.Check() {
	case reelerrors.StateOpen:
		m.logger.Debug("%s breaker is open", key)
		return false
	case reelerrors.StateHalfOpen:
		m.logger.Info("%s breaker is half-open, probing", key)
		return m.probe(ctx, category, cfg).Healthy
	}

	if cached, ok := m.cache.Get(key); ok && m.now().Sub(cached.CheckedAt) < m.interval(ctx) {
		return cached.Healthy
	}
	return m.probe(ctx, category, cfg).Healthy
}

func (m *HealthMonitor) probe(ctx context.Context, category providers.Category, cfg ModelConfig) HealthStatus {
	key := cfg.Key(category)
	ctx, span := m.tracer.StartSpan(ctx, observability.SpanHealthProbe, observability.ProviderAttrs(string(category), cfg.Provider, cfg.Model)...)
	defer span.End()

	status := HealthStatus{Key: key, CheckedAt: m.now()}
	provider, err := m.registry.Get(cfg.Provider)
	if err != nil {
		status.Error = err.Error()
		m.logger.Warn("Cannot probe %s: %v", key, err)
		m.cache.Add(key, status)
		return status
	}

	probe := providers.ProbeRequest(category, cfg.Model)
	req := cfg.Request(category, probe.Prompt, probe.Params)
	req.Probe = true

	_, err = m.invoker.Call(ctx, category, cfg, func(ctx context.Context) (providers.Response, error) {
		resp, err := provider.Invoke(ctx, req)
		if err != nil {
			return resp, err
		}
		if !resp.Valid() {
			return resp, errors.New("probe returned a malformed response")
		}
		return resp, nil
	}, WithMaxRetries(1), WithTimeout(m.probeTimeout(ctx)))

	if err != nil {
		status.Error = err.Error()
		status.ErrorType = reelerrors.GetErrorType(err).String()
		span.SetAttributes(observability.ErrorAttrs(err)...)
		if reelerrors.IsCircuitOpen(err) {
			// Another caller holds the half-open trial; its outcome decides.
			m.logger.Debug("Health probe for %s skipped: %v", key, err)
			return status
		}
		m.logger.Warn("Health probe for %s failed: %v", key, err)
	} else {
		status.Healthy = true
	}
	m.cache.Add(key, status)
	return status
}

// Probe forces a fresh probe of cfg regardless of cached state. An open
// breaker still short-circuits it.
func (m *HealthMonitor) Probe(ctx context.Context, category providers.Category, cfg ModelConfig) (HealthStatus, error) {
	status := m.probe(ctx, category, cfg)
	if !status.Healthy {
		return status, fmt.Errorf("%s unhealthy: %s", status.Key, status.Error)
	}
	return status, nil
}

// Snapshot returns cached probe results, sorted by key.
func (m *HealthMonitor) Snapshot() []HealthStatus {
	out := m.cache.Values()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Forget drops every cached probe result.
func (m *HealthMonitor) Forget() {
	m.cache.Purge()
}
