package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracingDisabledInstallsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	defer span.End()
	require.False(t, span.SpanContext().IsValid())
}

func TestInitTracingEnabledInstallsSDKProvider(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: true, ServiceName: "field-presence-test"})
	require.NoError(t, err)
	t.Cleanup(func() { ShutdownWithTimeout(shutdown) })

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)

	_, span := otel.Tracer("test").Start(context.Background(), "sampled")
	require.True(t, span.SpanContext().IsSampled())
	span.End()
}
