package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDisabledTracingIsNoop(t *testing.T) {
	tp, err := NewTracerProvider(TracingConfig{Enabled: false})
	require.NoError(t, err)

	_, span := tp.StartSpan(context.Background(), SpanProviderInvoke)
	require.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestUnsupportedExporter(t *testing.T) {
	_, err := NewTracerProvider(TracingConfig{Enabled: true, Exporter: "carrier-pigeon"})
	require.ErrorContains(t, err, "unsupported exporter")
}

func TestNilTracerProviderIsSafe(t *testing.T) {
	var tp *TracerProvider
	require.NotNil(t, tp.Tracer())
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestStartSpanTagsRunID(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	sdk := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tp := &TracerProvider{provider: sdk, tracer: sdk.Tracer("test")}
	defer tp.Shutdown(context.Background())

	ctx := ContextWithRunID(context.Background(), "run-42")
	_, span := tp.StartSpan(ctx, SpanHealthProbe, ProviderAttrs("video", "runway", "gen3a_turbo")...)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, SpanHealthProbe, ended[0].Name())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	require.Equal(t, "run-42", attrs[AttrRunID].AsString())
	require.Equal(t, "runway", attrs[AttrProvider].AsString())
	require.Equal(t, "video", attrs[AttrService].AsString())
}

func TestErrorAttrs(t *testing.T) {
	require.Nil(t, ErrorAttrs(nil))

	attrs := ErrorAttrs(errors.New("quota exceeded"))
	require.Len(t, attrs, 2)
	require.True(t, attrs[0].Value.AsBool())
	require.Equal(t, "quota exceeded", attrs[1].Value.AsString())
}
