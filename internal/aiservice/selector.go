package aiservice

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reelpipe/internal/config"
	"reelpipe/internal/logging"
	"reelpipe/internal/providers"
)

// Selector picks the first healthy tier of a category's fallback chain.
type Selector struct {
	resolver *config.Resolver
	monitor  *HealthMonitor
	registry *providers.Registry
	metrics  MetricsRecorder
	logger   logging.Logger
	now      func() time.Time
	newID    func() string
}

// SelectorOption customizes a Selector.
type SelectorOption func(*Selector)

// WithSelectorMetrics reports degraded selections to m.
func WithSelectorMetrics(m MetricsRecorder) SelectorOption {
	return func(s *Selector) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSelectorLogger sets the logger.
func WithSelectorLogger(logger logging.Logger) SelectorOption {
	return func(s *Selector) { s.logger = logging.OrNop(logger) }
}

// WithSelectorClock injects the clock stamped on selections.
func WithSelectorClock(now func() time.Time) SelectorOption {
	return func(s *Selector) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSelector builds a selector.
func NewSelector(resolver *config.Resolver, monitor *HealthMonitor, registry *providers.Registry, opts ...SelectorOption) *Selector {
	s := &Selector{
		resolver: resolver,
		monitor:  monitor,
		registry: registry,
		metrics:  nopMetrics{},
		logger:   logging.NewComponentLogger("selector"),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectModel returns the first healthy of primary, fallback and emergency,
// skipping tiers whose provider req excludes. When none is healthy the
// primary is returned with Degraded set.
func (s *Selector) SelectModel(ctx context.Context, category providers.Category, req Requirements) (Selection, error) {
	svc, err := LoadServiceConfiguration(ctx, s.resolver, category)
	if err != nil {
		return Selection{}, err
	}

	for _, tc := range svc.chain() {
		if req.excludes(tc.cfg.Provider) {
			s.logger.Debug("Skipping excluded %s tier %s", category, tc.cfg.Provider)
			continue
		}
		if s.monitor.IsHealthy(ctx, category, tc.cfg) {
			if tc.tier != TierPrimary {
				s.logger.Info("Using %s tier %s/%s for %s", tc.tier, tc.cfg.Provider, tc.cfg.Model, category)
			}
			return s.selection(category, tc.tier, tc.cfg, false), nil
		}
	}

	s.logger.Warn("No healthy %s provider, falling back to primary %s/%s in degraded mode",
		category, svc.Primary.Provider, svc.Primary.Model)
	s.metrics.RecordDegradedSelection(ctx, string(category), svc.Primary.Provider)
	return s.selection(category, TierPrimary, svc.Primary, true), nil
}

func (s *Selector) selection(category providers.Category, tier Tier, cfg ModelConfig, degraded bool) Selection {
	sel := Selection{
		DecisionID: s.newID(),
		Category:   category,
		Tier:       tier,
		Config:     cfg.clone(),
		Degraded:   degraded,
		SelectedAt: s.now(),
	}
	if p, err := s.registry.Get(cfg.Provider); err == nil {
		sel.Provider = p
	}
	return sel
}
