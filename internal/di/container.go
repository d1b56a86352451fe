package di

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"reelpipe/internal/aiservice"
	"reelpipe/internal/config"
	"reelpipe/internal/cost"
	"reelpipe/internal/observability"
	"reelpipe/internal/providers"
	"reelpipe/internal/server"
)

// Container holds all application dependencies
type Container struct {
	Bootstrap config.Bootstrap
	Logger    *observability.Logger
	Metrics   *observability.MetricsCollector
	Tracer    *observability.TracerProvider

	Resolver  *config.Resolver
	Providers *providers.Registry
	Invoker   *aiservice.Invoker
	Monitor   *aiservice.HealthMonitor
	Selector  *aiservice.Selector
	Estimator *cost.Estimator
}

// ServerDeps exposes the container's services to the admin API.
func (c *Container) ServerDeps() server.Deps {
	return server.Deps{
		Resolver:  c.Resolver,
		Selector:  c.Selector,
		Invoker:   c.Invoker,
		Monitor:   c.Monitor,
		Estimator: c.Estimator,
		Metrics:   c.Metrics.Handler(),
		Tracer:    c.Tracer,
	}
}

// Cleanup gracefully shuts down all resources
func (c *Container) Cleanup(ctx context.Context) error {
	var errs []error
	if c.Tracer != nil {
		errs = append(errs, c.Tracer.Shutdown(ctx))
	}
	if c.Metrics != nil {
		errs = append(errs, c.Metrics.Shutdown(ctx))
	}
	if c.Logger != nil {
		errs = append(errs, c.Logger.Close())
	}
	return errors.Join(errs...)
}

// resolvePath expands ~ and environment variables in a configured file path.
func resolvePath(configured string) string {
	path := configured
	if path == "" {
		return path
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && path[1] == '/' {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			} else {
				path = filepath.Join(home, path[1:])
			}
		}
	}

	return os.ExpandEnv(path)
}
