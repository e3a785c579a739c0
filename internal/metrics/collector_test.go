package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
	"github.com/BaSui01/agentpipe/workflow"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWith("agentpipe", reg, zap.NewNop()), reg
}

func TestNewCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollectorWith("agentpipe", reg, nil)
	assert.Panics(t, func() { NewCollectorWith("agentpipe", reg, nil) }, "duplicate registration")
	assert.NotPanics(t, func() { NewCollectorWith("other", reg, nil) })
}

func TestCollector_RecordRunAndUnit(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordRun("wf", "dag", "completed", 2*time.Second)
	c.RecordRun("wf", "dag", "completed", time.Second)
	c.RecordRun("wf", "dag", "failed", time.Second)
	c.RecordUnit("wf", "fetch", "function", "completed", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("wf", "dag", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("wf", "dag", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.unitExecutionsTotal.WithLabelValues("wf", "fetch", "function", "completed")))

	n, err := testutil.GatherAndCount(reg, "agentpipe_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollector_WavesRoutesViolations(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordWave("wf", 0, 2)
	c.RecordWave("wf", 1, 1)
	c.RecordRoute("wf", "triage", "billing")
	c.RecordSandboxViolation("wf", "expr")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.wavesTotal.WithLabelValues("wf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.routeSelections.WithLabelValues("wf", "triage", "billing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sandboxViolations.WithLabelValues("wf", "expr")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.waveSize))
}

func TestCollector_CallMiddleware(t *testing.T) {
	c, _ := newTestCollector(t)
	mw := c.CallMiddleware()

	ok := mw(func(context.Context, workflow.Call) (any, error) { return "x", nil })
	out, err := ok(context.Background(), workflow.Call{Kind: workflow.CallModel, Target: "gpt"})
	require.NoError(t, err)
	assert.Equal(t, "x", out)

	failing := mw(func(context.Context, workflow.Call) (any, error) { return nil, errors.New("boom") })
	_, err = failing(context.Background(), workflow.Call{Kind: workflow.CallTool, Target: "search"})
	assert.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.callsTotal.WithLabelValues("model", "gpt", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.callsTotal.WithLabelValues("tool", "search", "error")))
}

func TestCallStatus(t *testing.T) {
	assert.Equal(t, "success", callStatus(nil))
	assert.Equal(t, "timeout", callStatus(context.DeadlineExceeded))
	assert.Equal(t, "cancelled", callStatus(context.Canceled))
	assert.Equal(t, "cancelled", callStatus(types.NewError(types.ErrCancelled, "stop")))
	assert.Equal(t, "error", callStatus(errors.New("x")))
}

func TestCollector_AsEngineRecorder(t *testing.T) {
	c, _ := newTestCollector(t)

	u := workflow.NewFunctionUnit("f", "", "out", nil, "noop", func(context.Context, map[string]any) (any, error) {
		return 1, nil
	}, nil)
	graph := workflow.NewUnitGraph()
	require.NoError(t, graph.Add(u))
	wf, err := workflow.NewWorkflow("metered", "", graph, workflow.Orchestration{Strategy: workflow.StrategySequential, Members: []string{"f"}})
	require.NoError(t, err)

	orch := workflow.NewOrchestrator(nil, workflow.EngineOptions{
		Recorder:   c,
		Middleware: []workflow.CallMiddleware{c.CallMiddleware()},
	}, nil)
	_, err = orch.Run(context.Background(), wf, workflow.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("metered", "sequential", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.unitExecutionsTotal.WithLabelValues("metered", "f", "function", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.callsTotal.WithLabelValues("function", "noop", "success")))
}
