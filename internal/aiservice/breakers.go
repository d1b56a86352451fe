package aiservice

import (
	"context"
	"time"

	"reelpipe/internal/config"
	reelerrors "reelpipe/internal/errors"
	"reelpipe/internal/providers"
)

// BreakerRegistry hands out one circuit breaker per category:provider:model,
// keeping each breaker's limits in step with ai.resilience configuration.
type BreakerRegistry struct {
	manager  *reelerrors.CircuitBreakerManager
	resolver *config.Resolver
}

// NewBreakerRegistry creates breakers through manager and reads limits
// through resolver. A nil resolver keeps the manager's defaults.
func NewBreakerRegistry(manager *reelerrors.CircuitBreakerManager, resolver *config.Resolver) *BreakerRegistry {
	if manager == nil {
		manager = reelerrors.NewCircuitBreakerManager(reelerrors.DefaultCircuitBreakerConfig())
	}
	return &BreakerRegistry{manager: manager, resolver: resolver}
}

// For returns the breaker for cfg, refreshing its limits.
func (r *BreakerRegistry) For(ctx context.Context, category providers.Category, cfg ModelConfig) *reelerrors.CircuitBreaker {
	breaker := r.manager.Get(cfg.Key(category))
	if r.resolver != nil {
		threshold, timeout := r.limits(ctx, category, cfg.Provider)
		breaker.SetLimits(threshold, timeout)
	}
	return breaker
}

// limits reads ai.resilience.<category>.<provider>.* and falls back to the
// global ai.resilience.* keys.
func (r *BreakerRegistry) limits(ctx context.Context, category providers.Category, provider string) (int, time.Duration) {
	defaults := reelerrors.DefaultCircuitBreakerConfig()
	scoped := "ai.resilience." + string(category) + "." + provider + "."

	threshold := r.resolver.GetInt(ctx, "ai.resilience.failureThreshold", defaults.FailureThreshold)
	threshold = r.resolver.GetInt(ctx, scoped+"failureThreshold", threshold)

	timeout := r.resolver.GetDuration(ctx, "ai.resilience.openTimeoutSeconds", defaults.Timeout, time.Second)
	timeout = r.resolver.GetDuration(ctx, scoped+"openTimeoutSeconds", timeout, time.Second)
	return threshold, timeout
}

// Snapshot returns metrics for every breaker created so far.
func (r *BreakerRegistry) Snapshot() []reelerrors.CircuitBreakerMetrics {
	return r.manager.GetMetrics()
}

// ResetAll closes every breaker.
func (r *BreakerRegistry) ResetAll() {
	r.manager.ResetAll()
}
