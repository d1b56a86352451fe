package di

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"reelpipe/internal/aiservice"
	"reelpipe/internal/config"
	"reelpipe/internal/cost"
	reelerrors "reelpipe/internal/errors"
	"reelpipe/internal/logging"
	"reelpipe/internal/observability"
	"reelpipe/internal/providers"
)

// Option customizes container construction.
type Option func(*containerBuilder)

// WithStores replaces the bootstrap-derived source chain.
func WithStores(stores ...config.ValueStore) Option {
	return func(b *containerBuilder) {
		b.stores = stores
	}
}

// WithProviders registers providers after the built-in variants, replacing
// any with the same name.
func WithProviders(ps ...providers.ModelProvider) Option {
	return func(b *containerBuilder) {
		b.extraProviders = append(b.extraProviders, ps...)
	}
}

// WithAWSConfig skips the default credential chain.
func WithAWSConfig(cfg aws.Config) Option {
	return func(b *containerBuilder) {
		b.awsCfg = &cfg
	}
}

type containerBuilder struct {
	boot           config.Bootstrap
	stores         []config.ValueStore
	extraProviders []providers.ModelProvider
	awsCfg         *aws.Config
	logger         logging.Logger
}

// BuildContainer builds the dependency injection container from bootstrap settings.
func BuildContainer(ctx context.Context, boot config.Bootstrap, opts ...Option) (*Container, error) {
	b := &containerBuilder{boot: boot}
	for _, opt := range opts {
		opt(b)
	}
	return b.Build(ctx)
}

func (b *containerBuilder) Build(ctx context.Context) (*Container, error) {
	c := &Container{Bootstrap: b.boot}

	if err := b.buildObservability(c); err != nil {
		return nil, err
	}
	b.logger.Debug("Building container for %s/%s (aws=%t)", b.boot.App, b.boot.Environment, !b.boot.DisableAWS)

	awsCfg, err := b.resolveAWSConfig(ctx)
	if err != nil {
		_ = c.Cleanup(ctx)
		return nil, err
	}
	stores, err := b.buildStores(awsCfg)
	if err != nil {
		_ = c.Cleanup(ctx)
		return nil, err
	}

	c.Resolver = config.NewResolver(stores,
		config.WithCacheTTL(b.boot.CacheTTL),
		config.WithLookupRecorder(c.Metrics),
		config.WithLogger(logging.FromObservabilityWithComponent(c.Logger, "config-resolver")),
	)

	c.Providers = providers.NewRegistry()
	providers.RegisterKnown(c.Providers, providers.Deps{
		APIKey:     b.apiKeys(c.Resolver),
		AWS:        awsCfg,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
	})
	for _, p := range b.extraProviders {
		c.Providers.Register(p)
	}

	manager := reelerrors.NewCircuitBreakerManager(reelerrors.CircuitBreakerConfig{
		OnStateChange: func(name string, from, to reelerrors.CircuitState) {
			c.Metrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
		},
	})

	c.Invoker = aiservice.NewInvoker(aiservice.NewBreakerRegistry(manager, c.Resolver), aiservice.NewPerformanceTracker(), c.Resolver,
		aiservice.WithMetrics(c.Metrics),
		aiservice.WithTracer(c.Tracer),
		aiservice.WithInvokerLogger(logging.FromObservabilityWithComponent(c.Logger, "invoker")),
	)
	c.Monitor = aiservice.NewHealthMonitor(c.Invoker, c.Providers, c.Resolver,
		aiservice.WithHealthTracer(c.Tracer),
		aiservice.WithHealthLogger(logging.FromObservabilityWithComponent(c.Logger, "health-monitor")),
	)
	c.Selector = aiservice.NewSelector(c.Resolver, c.Monitor, c.Providers,
		aiservice.WithSelectorMetrics(c.Metrics),
		aiservice.WithSelectorLogger(logging.FromObservabilityWithComponent(c.Logger, "selector")),
	)
	c.Estimator = cost.NewEstimator(c.Resolver,
		cost.WithRecorder(c.Metrics),
		cost.WithLogger(logging.FromObservabilityWithComponent(c.Logger, "cost")),
	)

	b.logger.Info("Container built with %d sources and providers %s", len(stores), strings.Join(c.Providers.Names(), ","))
	return c, nil
}

func (b *containerBuilder) buildObservability(c *Container) error {
	obsCfg, err := observability.LoadConfig(resolvePath(b.boot.ObservabilityFile))
	if err != nil {
		return fmt.Errorf("load observability config: %w", err)
	}
	if b.boot.LogLevel != "" {
		obsCfg.Logging.Level = b.boot.LogLevel
	}
	if b.boot.LogFormat != "" {
		obsCfg.Logging.Format = b.boot.LogFormat
	}
	if b.boot.LogFile != "" {
		obsCfg.Logging.FilePath = b.boot.LogFile
	}

	c.Logger = observability.NewLogger(observability.LogConfig{
		Level:    obsCfg.Logging.Level,
		Format:   obsCfg.Logging.Format,
		Output:   os.Stderr,
		FilePath: resolvePath(obsCfg.Logging.FilePath),
	})
	logging.SetBase(c.Logger)
	b.logger = logging.FromObservabilityWithComponent(c.Logger, "DI")

	c.Metrics, err = observability.NewMetricsCollector(obsCfg.Metrics)
	if err != nil {
		return fmt.Errorf("create metrics collector: %w", err)
	}
	c.Tracer, err = observability.NewTracerProvider(obsCfg.Tracing)
	if err != nil {
		return fmt.Errorf("create tracer provider: %w", err)
	}
	return nil
}

func (b *containerBuilder) resolveAWSConfig(ctx context.Context) (aws.Config, error) {
	if b.awsCfg != nil {
		return *b.awsCfg, nil
	}
	if b.boot.DisableAWS {
		return aws.Config{Region: b.boot.Region}, nil
	}
	return config.LoadAWSConfig(ctx, b.boot.Region)
}

func (b *containerBuilder) buildStores(awsCfg aws.Config) ([]config.ValueStore, error) {
	if b.stores != nil {
		return b.stores, nil
	}
	boot := b.boot
	boot.DefaultsFile = resolvePath(boot.DefaultsFile)
	if boot.DisableAWS {
		return config.LocalStores(boot)
	}
	return config.BuildStoresWithAWS(boot, awsCfg)
}

// apiKeys reads secrets.<provider>.api.key through the resolver, so a key can
// come from the secret store, the environment or a runtime override.
func (b *containerBuilder) apiKeys(resolver *config.Resolver) func(string) providers.KeyFunc {
	return func(provider string) providers.KeyFunc {
		key := "secrets." + provider + ".api.key"
		return func(ctx context.Context) (string, error) {
			if v := strings.TrimSpace(resolver.GetString(ctx, key, "")); v != "" {
				return v, nil
			}
			return "", fmt.Errorf("%s is not configured", key)
		}
	}
}
