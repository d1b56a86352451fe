package aiservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"reelpipe/internal/config"
	reelerrors "reelpipe/internal/errors"
	"reelpipe/internal/logging"
	"reelpipe/internal/observability"
	"reelpipe/internal/providers"
)

// MetricsRecorder receives provider call telemetry.
type MetricsRecorder interface {
	RecordProviderCall(ctx context.Context, service, provider, model, status string, latency time.Duration)
	RecordDegradedSelection(ctx context.Context, service, provider string)
}

type nopMetrics struct{}

func (nopMetrics) RecordProviderCall(context.Context, string, string, string, string, time.Duration) {
}

func (nopMetrics) RecordDegradedSelection(context.Context, string, string) {}

// CallFunc performs one attempt against a provider.
type CallFunc func(ctx context.Context) (providers.Response, error)

// Invoker wraps provider calls with breaker gating, linear-backoff retry
// and performance tracking.
type Invoker struct {
	breakers *BreakerRegistry
	tracker  *PerformanceTracker
	resolver *config.Resolver
	metrics  MetricsRecorder
	tracer   *observability.TracerProvider
	logger   logging.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// InvokerOption customizes an Invoker.
type InvokerOption func(*Invoker)

// WithMetrics reports call outcomes to m.
func WithMetrics(m MetricsRecorder) InvokerOption {
	return func(i *Invoker) {
		if m != nil {
			i.metrics = m
		}
	}
}

// WithTracer opens a span per call.
func WithTracer(tp *observability.TracerProvider) InvokerOption {
	return func(i *Invoker) { i.tracer = tp }
}

// WithInvokerLogger sets the logger.
func WithInvokerLogger(logger logging.Logger) InvokerOption {
	return func(i *Invoker) { i.logger = logging.OrNop(logger) }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) InvokerOption {
	return func(i *Invoker) { i.sleep = sleep }
}

// WithInvokerClock replaces the clock used to time attempts.
func WithInvokerClock(now func() time.Time) InvokerOption {
	return func(i *Invoker) {
		if now != nil {
			i.now = now
		}
	}
}

// NewInvoker builds an invoker. resolver supplies retry defaults and may be nil.
func NewInvoker(breakers *BreakerRegistry, tracker *PerformanceTracker, resolver *config.Resolver, opts ...InvokerOption) *Invoker {
	if breakers == nil {
		breakers = NewBreakerRegistry(nil, resolver)
	}
	if tracker == nil {
		tracker = NewPerformanceTracker()
	}
	i := &Invoker{
		breakers: breakers,
		tracker:  tracker,
		resolver: resolver,
		metrics:  nopMetrics{},
		tracer:   observability.NoopTracerProvider(),
		logger:   logging.NewComponentLogger("invoker"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// CallOption customizes a single Call.
type CallOption func(*callOptions)

type callOptions struct {
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
}

// WithMaxRetries caps the total attempts.
func WithMaxRetries(n int) CallOption {
	return func(o *callOptions) { o.maxRetries = n }
}

// WithBaseDelay sets the linear backoff unit.
func WithBaseDelay(d time.Duration) CallOption {
	return func(o *callOptions) { o.baseDelay = d }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

func (i *Invoker) defaults(ctx context.Context) callOptions {
	base := reelerrors.DefaultRetryConfig()
	o := callOptions{maxRetries: base.MaxAttempts, baseDelay: base.BaseDelay}
	if i.resolver != nil {
		o.maxRetries = i.resolver.GetInt(ctx, "ai.retry.maxRetries", o.maxRetries)
		o.baseDelay = i.resolver.GetDuration(ctx, "ai.retry.baseDelayMs", o.baseDelay, time.Millisecond)
	}
	return o
}

// Call runs fn against cfg with up to maxRetries sequential attempts and a
// wait of baseDelay*attempt between them. An open breaker fails fast with
// *errors.CircuitOpenError; exhaustion returns *errors.RetryExhaustedError.
func (i *Invoker) Call(ctx context.Context, category providers.Category, cfg ModelConfig, fn CallFunc, opts ...CallOption) (providers.Response, error) {
	o := i.defaults(ctx)
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxRetries <= 0 {
		o.maxRetries = 1
	}

	key := cfg.Key(category)
	breaker := i.breakers.For(ctx, category, cfg)

	ctx, span := i.tracer.StartSpan(ctx, observability.SpanProviderInvoke, observability.ProviderAttrs(string(category), cfg.Provider, cfg.Model)...)
	defer span.End()

	attempts := 0
	resp, err := reelerrors.RetryWithResult(ctx, reelerrors.RetryConfig{
		MaxAttempts: o.maxRetries,
		BaseDelay:   o.baseDelay,
		Sleep:       i.sleep,
	}, func(ctx context.Context, attempt int) (providers.Response, error) {
		attempts = attempt
		if err := breaker.Allow(); err != nil {
			i.metrics.RecordProviderCall(ctx, string(category), cfg.Provider, cfg.Model, "short_circuit", 0)
			return providers.Response{}, err
		}
		return i.attempt(ctx, category, cfg, key, breaker, fn, o.timeout)
	}, i.logger)

	span.SetAttributes(attribute.Int(observability.AttrAttempt, attempts))
	if err != nil {
		span.SetAttributes(observability.ErrorAttrs(err)...)
		span.SetStatus(codes.Error, err.Error())
		logging.ForContext(ctx, i.logger).Warn("Call to %s failed after %d attempt(s) (%s): %v", key, attempts, reelerrors.GetErrorType(err), err)
		return providers.Response{}, err
	}
	return resp, nil
}

func (i *Invoker) attempt(ctx context.Context, category providers.Category, cfg ModelConfig, key string, breaker *reelerrors.CircuitBreaker, fn CallFunc, timeout time.Duration) (providers.Response, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := i.now()
	resp, err := fn(attemptCtx)
	elapsed := i.now().Sub(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = reelerrors.NewTransientError(fmt.Errorf("attempt timed out after %v: %w", timeout, err), 0)
		}
		i.tracker.RecordFailure(key, err)
		breaker.Mark(err)
		i.metrics.RecordProviderCall(ctx, string(category), cfg.Provider, cfg.Model, "error", elapsed)
		return providers.Response{}, err
	}

	i.tracker.RecordSuccess(key, elapsed)
	breaker.Mark(nil)
	i.metrics.RecordProviderCall(ctx, string(category), cfg.Provider, cfg.Model, "success", elapsed)
	return resp, nil
}

// Invoke calls provider with req built from cfg.
func (i *Invoker) Invoke(ctx context.Context, category providers.Category, cfg ModelConfig, provider providers.ModelProvider, prompt string, params map[string]any, opts ...CallOption) (providers.Response, error) {
	if provider == nil {
		return providers.Response{}, reelerrors.NewPermanentError(fmt.Errorf("%w: %s", providers.ErrUnknownProvider, cfg.Provider), 0)
	}
	req := cfg.Request(category, prompt, params)
	return i.Call(ctx, category, cfg, func(ctx context.Context) (providers.Response, error) {
		return provider.Invoke(ctx, req)
	}, opts...)
}

// GetPerformanceMetrics returns a snapshot of every tracked key.
func (i *Invoker) GetPerformanceMetrics() []PerformanceMetric {
	return i.tracker.Snapshot()
}

// Breakers exposes the breaker registry.
func (i *Invoker) Breakers() *BreakerRegistry {
	return i.breakers
}
