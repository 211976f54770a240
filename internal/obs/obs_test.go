package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetupOTel_DisabledStillPropagates(t *testing.T) {
	for name, cfg := range map[string]*OTELConfig{
		"nil":      nil,
		"disabled": {Enable: false, Endpoint: "unused:4317"},
	} {
		t.Run(name, func(t *testing.T) {
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())

			o, err := SetupOTel(context.Background(), cfg)
			require.NoError(t, err)
			require.NotNil(t, o)
			assert.Nil(t, o.TracerProvider)
			assert.NoError(t, o.Shutdown(context.Background()))

			fields := otel.GetTextMapPropagator().Fields()
			assert.Contains(t, fields, "traceparent")
			assert.Contains(t, fields, "baggage")
		})
	}
}

func TestOTel_ShutdownNil(t *testing.T) {
	var o *OTel
	assert.NoError(t, o.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestWithTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	WithTrace(context.Background(), log).Info("plain")

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	WithTrace(ctx, log).Info("traced")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0].ContextMap(), "trace_id")
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[1].ContextMap()["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entries[1].ContextMap()["span_id"])

	assert.NotPanics(t, func() { WithTrace(ctx, nil).Info("dropped") })
}
