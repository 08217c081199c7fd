package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/aemetwind/aemetwind/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	p, err := telemetry.Init(context.Background(), telemetry.Config{OTLPEndpoint: "localhost:4317"})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Same(t, before, otel.GetTracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	tracerBefore, meterBefore := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(tracerBefore)
		otel.SetMeterProvider(meterBefore)
	})

	// The gRPC exporters connect lazily, so no collector is needed here.
	p, err := telemetry.Init(context.Background(), telemetry.Config{
		Enabled:        true,
		ServiceVersion: "test",
		Environment:    "test",
		OTLPEndpoint:   "127.0.0.1:4317",
		MetricInterval: time.Hour,
	})
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, isSDK)

	// Nothing was recorded, so only the final metric export can fail.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = p.Shutdown(ctx)
}

func TestProvider_ZeroValue(t *testing.T) {
	var p telemetry.Provider
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{1.5, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := telemetry.Sampler(tt.ratio).Description()
		assert.Contains(t, desc, "ParentBased")
		assert.Contains(t, desc, tt.want)
	}
}

func TestGlobalAccessors(t *testing.T) {
	assert.NotNil(t, telemetry.Tracer("github.com/aemetwind/aemetwind/internal/worker"))
	assert.NotNil(t, telemetry.Meter("github.com/aemetwind/aemetwind/internal/aemet"))
}
