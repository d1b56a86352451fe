package aiservice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reelpipe/internal/config"
	reelerrors "reelpipe/internal/errors"
	"reelpipe/internal/logging"
	"reelpipe/internal/providers"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errUnavailable = reelerrors.NewTransientError(errors.New("service unavailable"), 503)

// scriptedProvider answers according to its current mode.
type scriptedProvider struct {
	name string

	mu        sync.Mutex
	err       error
	malformed bool
	calls     int
	lastReq   providers.Request
}

func (p *scriptedProvider) Name() string {
	return p.name
}

func (p *scriptedProvider) Invoke(_ context.Context, req providers.Request) (providers.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastReq = req
	if p.err != nil {
		return providers.Response{}, p.err
	}
	if p.malformed {
		return providers.Response{Provider: p.name, ContentType: "application/json", Raw: []byte("{")}, nil
	}
	return providers.Response{Provider: p.name, Model: req.Model, Body: map[string]any{"ok": true}}, nil
}

func (p *scriptedProvider) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeMetrics struct {
	mu       sync.Mutex
	calls    []string
	degraded []string
}

func (m *fakeMetrics) RecordProviderCall(_ context.Context, service, provider, _, status string, _ time.Duration) {
	m.mu.Lock()
	m.calls = append(m.calls, service+":"+provider+":"+status)
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordDegradedSelection(_ context.Context, service, provider string) {
	m.mu.Lock()
	m.degraded = append(m.degraded, service+":"+provider)
	m.mu.Unlock()
}

func videoTree() map[string]any {
	return map[string]any{
		"ai": map[string]any{
			"models": map[string]any{
				"video": map[string]any{
					"primary":   map[string]any{"provider": "runway", "model": "gen3a_turbo", "tunables": map[string]any{"duration": 5}},
					"fallback":  map[string]any{"provider": "luma", "model": "ray-2"},
					"emergency": map[string]any{"provider": "bedrock", "model": "amazon.nova-reel-v1:0", "region": "us-east-1"},
				},
			},
		},
	}
}

type harness struct {
	clock    *fakeClock
	resolver *config.Resolver
	registry *providers.Registry
	invoker  *Invoker
	monitor  *HealthMonitor
	selector *Selector
	metrics  *fakeMetrics

	runway  *scriptedProvider
	luma    *scriptedProvider
	bedrock *scriptedProvider

	sleepMu sync.Mutex
	sleeps  []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   newFakeClock(),
		metrics: &fakeMetrics{},
		runway:  &scriptedProvider{name: "runway"},
		luma:    &scriptedProvider{name: "luma"},
		bedrock: &scriptedProvider{name: "bedrock"},
	}
	h.resolver = config.NewResolver(
		[]config.ValueStore{config.NewDefaultStoreFromMap(videoTree())},
		config.WithLogger(logging.Nop()),
	)
	h.registry = providers.NewRegistry(h.runway, h.luma, h.bedrock)

	manager := reelerrors.NewCircuitBreakerManager(reelerrors.CircuitBreakerConfig{Now: h.clock.Now})
	h.invoker = NewInvoker(NewBreakerRegistry(manager, h.resolver), NewPerformanceTracker(), h.resolver,
		WithMetrics(h.metrics),
		WithInvokerLogger(logging.Nop()),
		WithInvokerClock(h.clock.Now),
		WithSleep(func(_ context.Context, d time.Duration) error {
			h.sleepMu.Lock()
			h.sleeps = append(h.sleeps, d)
			h.sleepMu.Unlock()
			return nil
		}),
	)
	h.monitor = NewHealthMonitor(h.invoker, h.registry, h.resolver,
		WithHealthClock(h.clock.Now),
		WithHealthLogger(logging.Nop()),
	)
	h.selector = NewSelector(h.resolver, h.monitor, h.registry,
		WithSelectorMetrics(h.metrics),
		WithSelectorLogger(logging.Nop()),
		WithSelectorClock(h.clock.Now),
	)
	return h
}

func (h *harness) recordedSleeps() []time.Duration {
	h.sleepMu.Lock()
	defer h.sleepMu.Unlock()
	return append([]time.Duration(nil), h.sleeps...)
}

var (
	runwayCfg = ModelConfig{Provider: "runway", Model: "gen3a_turbo"}
	lumaCfg   = ModelConfig{Provider: "luma", Model: "ray-2"}
)
