package logging

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"reelpipe/internal/observability"
)

// Logger is the printf-style contract every reelpipe component logs through:
// the resolver, the invoker, the health monitor, the selector, the estimator
// and the admin server.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop discards everything. Tests hand it to components they build directly.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil, including a typed nil pointer stored
// in the interface.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop lets option funcs accept a nil logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

var base atomic.Pointer[observability.Logger]

// SetBase installs the structured logger built by the DI container. Component
// loggers created afterwards write through it; nil restores the stdout
// fallback.
func SetBase(logger *observability.Logger) {
	base.Store(logger)
}

func baseLogger() *observability.Logger {
	if l := base.Load(); l != nil {
		return l
	}
	l := observability.NewLogger(observability.LogConfig{Level: "info", Format: "text"})
	base.CompareAndSwap(nil, l)
	return base.Load()
}

// NewComponentLogger is the default logger a constructor falls back to when
// no logger option is passed, e.g. "config-resolver" or "admin-server".
func NewComponentLogger(component string) Logger {
	return FromObservabilityWithComponent(baseLogger(), component)
}

type structuredLogger struct {
	logger *observability.Logger
}

// FromObservabilityWithComponent adapts a structured logger to Logger, tagging
// every record with component. Messages are formatted before emission.
func FromObservabilityWithComponent(logger *observability.Logger, component string) Logger {
	if logger == nil {
		return Nop()
	}
	scoped := logger
	if component != "" {
		scoped = scoped.With("component", component)
	}
	return &structuredLogger{logger: scoped}
}

// ForContext tags logger with the run and trace IDs carried by ctx. Loggers
// that are not backed by the structured logger are returned unchanged.
func ForContext(ctx context.Context, logger Logger) Logger {
	if sl, ok := logger.(*structuredLogger); ok && sl != nil {
		return &structuredLogger{logger: sl.logger.WithContext(ctx)}
	}
	return OrNop(logger)
}

func (l *structuredLogger) Debug(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *structuredLogger) Info(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *structuredLogger) Warn(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *structuredLogger) Error(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
