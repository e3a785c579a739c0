package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentpipe/config"
	"github.com/BaSui01/agentpipe/workflow"
)

// saveAndRestoreGlobalProviders snapshots the current global OTel providers
// and restores them via t.Cleanup so tests don't leak state.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Nil(t, p.tp, "TracerProvider should be nil when disabled")
	assert.Nil(t, p.mp, "MeterProvider should be nil when disabled")
	assert.False(t, p.Enabled())
	assert.Empty(t, p.InstanceID())
	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "agentpipe-test",
		SampleRate:   0.5,
	}
	p, err := Init(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, p.Enabled())
	assert.Len(t, p.InstanceID(), 36)

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK, "global TracerProvider should be *sdktrace.TracerProvider")
	assert.True(t, mpIsSDK, "global MeterProvider should be *sdkmetric.MeterProvider")

	// No collector is running; Shutdown may report a connection error but must return.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() { _ = p.Shutdown(ctx) })
}

func TestInit_TLSExporter(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "otel.example.internal:4317",
		ServiceName:  "agentpipe-test",
		SampleRate:   1,
	}
	p, err := Init(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() { _ = p.Shutdown(ctx) })
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
	assert.Empty(t, p.InstanceID())
}

func TestBuildVersion(t *testing.T) {
	// Test binaries report "(devel)", which falls back to "dev".
	assert.Equal(t, "dev", BuildVersion())
}

func sequentialWorkflow(t *testing.T, fn workflow.Function) *workflow.Workflow {
	t.Helper()
	graph := workflow.NewUnitGraph()
	require.NoError(t, graph.Add(workflow.NewFunctionUnit("step", "", "out", nil, "step", fn, nil)))
	wf, err := workflow.NewWorkflow("traced", "", graph, workflow.Orchestration{Strategy: workflow.StrategySequential, Members: []string{"step"}})
	require.NoError(t, err)
	return wf
}

func TestEngineSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	p := &Providers{tp: tp}

	wf := sequentialWorkflow(t, func(context.Context, map[string]any) (any, error) { return "ok", nil })
	res, err := workflow.NewOrchestrator(nil, workflow.EngineOptions{Tracer: p.Tracer()}, nil).
		Run(context.Background(), wf, workflow.RunOptions{})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	unit, run := spans[0], spans[1]
	assert.Equal(t, "workflow.unit", unit.Name())
	assert.Equal(t, "workflow.run", run.Name())
	assert.Equal(t, run.SpanContext().SpanID(), unit.Parent().SpanID())
	assert.Equal(t, codes.Ok, unit.Status().Code)
	assert.Equal(t, run.SpanContext().TraceID().String(), traceIDOf(t, res))
}

func traceIDOf(t *testing.T, res *workflow.RunResult) string {
	t.Helper()
	require.NotNil(t, res.History)
	return res.History.TraceID
}

func TestRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	p := &Providers{mp: mp}

	rec, err := NewRecorder(p.Meter())
	require.NoError(t, err)

	wf := sequentialWorkflow(t, func(context.Context, map[string]any) (any, error) { return "ok", nil })
	_, err = workflow.NewOrchestrator(nil, workflow.EngineOptions{Recorder: rec}, nil).
		Run(context.Background(), wf, workflow.RunOptions{})
	require.NoError(t, err)
	rec.RecordWave("traced", 0, 3)
	rec.RecordRoute("traced", "r", "a")
	rec.RecordSandboxViolation("traced", "e")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
		if m.Name == "agentpipe.runs" {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			assert.Equal(t, int64(1), sum.DataPoints[0].Value)
		}
	}
	for _, want := range []string{
		"agentpipe.runs", "agentpipe.run.duration", "agentpipe.units", "agentpipe.unit.duration",
		"agentpipe.dag.wave_size", "agentpipe.route.selections", "agentpipe.sandbox.violations",
	} {
		assert.True(t, names[want], want)
	}
}
