package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetupTracing_InstallsProvider(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown := SetupTracing(context.Background(), "autoassign-test", "127.0.0.1:1")
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	require.NotNil(t, shutdown)
	require.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	span.End()
	shutdown()
}
