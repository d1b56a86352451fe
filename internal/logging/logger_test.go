package logging

import (
	"bytes"
	"context"
	"testing"

	"reelpipe/internal/observability"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.lines = append(r.lines, "debug") }
func (r *recordingLogger) Info(format string, args ...any)  { r.lines = append(r.lines, "info") }
func (r *recordingLogger) Warn(format string, args ...any)  { r.lines = append(r.lines, "warn") }
func (r *recordingLogger) Error(format string, args ...any) { r.lines = append(r.lines, "error") }

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var typed *recordingLogger
	var logger Logger = typed
	if !IsNil(logger) {
		t.Fatalf("expected typed nil pointer to be detected")
	}
	safe := OrNop(logger)
	if IsNil(safe) {
		t.Fatalf("expected OrNop to return a usable logger")
	}
	safe.Info("hello %s", "world")
}

func TestFromObservabilityFormatsMessages(t *testing.T) {
	buf := &bytes.Buffer{}
	base := observability.NewLogger(observability.LogConfig{
		Level:  "info",
		Format: "text",
		Output: buf,
	})

	logger := FromObservabilityWithComponent(base, "resolver")
	logger.Info("hello %s", "world")

	if want := "hello world"; !bytes.Contains(buf.Bytes(), []byte(want)) {
		t.Fatalf("expected %q in output, got %q", want, buf.String())
	}
	if want := "component=resolver"; !bytes.Contains(buf.Bytes(), []byte(want)) {
		t.Fatalf("expected %q in output, got %q", want, buf.String())
	}
}

func TestComponentLoggerUsesInstalledBase(t *testing.T) {
	buf := &bytes.Buffer{}
	SetBase(observability.NewLogger(observability.LogConfig{Level: "debug", Format: "text", Output: buf}))
	t.Cleanup(func() { SetBase(nil) })

	NewComponentLogger("selector").Warn("degraded %s", "audio")
	if !bytes.Contains(buf.Bytes(), []byte("degraded audio")) {
		t.Fatalf("expected component logger to write through base, got %q", buf.String())
	}
}

func TestForContextTagsRunAndTraceIDs(t *testing.T) {
	buf := &bytes.Buffer{}
	base := observability.NewLogger(observability.LogConfig{Level: "info", Format: "text", Output: buf})

	ctx := observability.ContextWithRunID(context.Background(), "run-7")
	ctx = observability.ContextWithTraceID(ctx, "abc123")
	ForContext(ctx, FromObservabilityWithComponent(base, "admin-server")).Warn("select %s failed", "video")

	for _, want := range []string{"select video failed", "run_id=run-7", "trace_id=abc123", "component=admin-server"} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Fatalf("expected %q in output, got %q", want, buf.String())
		}
	}
}

func TestForContextLeavesOtherLoggersAlone(t *testing.T) {
	rec := &recordingLogger{}
	if got := ForContext(context.Background(), rec); got != Logger(rec) {
		t.Fatalf("expected the same logger back, got %T", got)
	}
	var typed *recordingLogger
	ForContext(context.Background(), typed).Info("safe")
}
