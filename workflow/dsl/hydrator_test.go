package dsl

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/agentpipe/types"
	"github.com/BaSui01/agentpipe/workflow"
)

func testResolver() *workflow.ToolResolver {
	caps := workflow.NewCapabilityTable().
		MustRegister("fetch", func(_ context.Context, args map[string]any) (any, error) {
			return fmt.Sprintf("data-%v", args["source"]), nil
		}).
		MustRegister("answer", func(_ context.Context, args map[string]any) (any, error) {
			return fmt.Sprintf("%v handled", args["team"]), nil
		})
	return workflow.NewToolResolver(workflow.WithCapabilities(caps))
}

func newHydrator(t *testing.T, opts Options, logger *zap.Logger) *Hydrator {
	t.Helper()
	h, err := NewHydrator(nil, testResolver(), opts, logger)
	require.NoError(t, err)
	return h
}

func TestHydrate_FanIn(t *testing.T) {
	wf, err := newHydrator(t, Options{}, nil).HydrateBytes([]byte(fanInYAML))
	require.NoError(t, err)

	assert.Equal(t, workflow.StrategyDAG, wf.Strategy())
	assert.Equal(t, workflow.Plan{{"fetch_a", "fetch_b"}, {"combine"}}, wf.Plan())
	assert.Equal(t, []string{"fetch_a", "fetch_b", "combine"}, wf.Graph().Names())

	res, err := workflow.NewOrchestrator(nil, workflow.EngineOptions{}, nil).Run(context.Background(), wf, workflow.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionStatusCompleted, res.Status)
	assert.Equal(t, "data-a+data-b", res.State["combined"])
	assert.Equal(t, map[string]any{"combine": "data-a+data-b"}, res.Output)
}

func TestHydrate_LoopWithDefaultBound(t *testing.T) {
	doc := `
name: counter
variables:
  count: {type: int, default: 0}
units:
  - name: inc
    kind: expression
    expression: count + 1
    input_keys: [count]
    output_key: count
orchestration:
  strategy: loop
  members: [inc]
`
	wf, err := newHydrator(t, Options{DefaultMaxIterations: 4}, nil).HydrateBytes([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 4, wf.Orchestration().MaxIterations)
	require.Len(t, wf.Variables(), 1)

	res, err := workflow.NewOrchestrator(nil, workflow.EngineOptions{}, nil).Run(context.Background(), wf, workflow.RunOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, res.State["count"])
}

func TestHydrate_Composites(t *testing.T) {
	doc := &WorkflowDSL{
		Name: "nested",
		Units: []UnitDef{
			{Name: "outer", Kind: "sequential", Children: []string{"fan", "retry"}, OutputKey: "outer"},
			{Name: "fan", Kind: "parallel", Children: []string{"fetch_a", "fetch_b"}},
			{Name: "retry", Kind: "loop", Children: []string{"stop"}},
			{Name: "fetch_a", Kind: "function", Function: "fetch", Params: map[string]any{"source": "a"}, OutputKey: "a"},
			{Name: "fetch_b", Kind: "function", Function: "fetch", Params: map[string]any{"source": "b"}, OutputKey: "b"},
			{Name: "stop", Kind: "tool", Tool: workflow.ToolExitLoop},
		},
		Orchestration: &OrchestrationDef{Strategy: "sequential", Members: []string{"outer"}},
	}
	core, logs := observer.New(zap.WarnLevel)
	wf, err := newHydrator(t, Options{}, zap.New(core)).Hydrate(doc)
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("loop unit has no iteration bound").Len())

	outer, ok := wf.Graph().Get("outer")
	require.True(t, ok)
	children := outer.(workflow.Composite).Children()
	require.Len(t, children, 2)
	assert.Equal(t, workflow.KindParallel, children[0].Kind())
	assert.Equal(t, workflow.KindLoop, children[1].Kind())

	// Children hydrate to the same unit instances the graph holds.
	fan, _ := wf.Graph().Get("fan")
	assert.Same(t, fan, children[0])

	res, err := workflow.NewOrchestrator(nil, workflow.EngineOptions{}, nil).Run(context.Background(), wf, workflow.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "data-a", res.State["a"])
	assert.Equal(t, "data-b", res.State["b"])
}

func TestHydrate_CompositeCycle(t *testing.T) {
	doc := &WorkflowDSL{
		Name: "cyclic",
		Units: []UnitDef{
			{Name: "a", Kind: "sequential", Children: []string{"b"}},
			{Name: "b", Kind: "loop", Children: []string{"a"}, MaxIterations: intPtr(1)},
		},
		Orchestration: &OrchestrationDef{Strategy: "sequential", Members: []string{"a"}},
	}
	_, err := newHydrator(t, Options{}, nil).Hydrate(doc)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrStructural))
	assert.Contains(t, err.Error(), "contains itself")
}

func TestHydrate_StructuralFailures(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		unit string
		code types.ErrorCode
	}{
		{
			name: "unresolvable tool",
			doc: `
name: t
units:
  - {name: agent, kind: llm, instruction: go, tools: [web_search]}
orchestration: {strategy: react, unit: agent}
`,
			unit: "agent",
			code: types.ErrStructural,
		},
		{
			name: "unknown function",
			doc: `
name: t
units:
  - {name: f, kind: function, function: os.system}
orchestration: {strategy: sequential, members: [f]}
`,
			unit: "f",
			code: types.ErrStructural,
		},
		{
			name: "sandbox rejection at hydration",
			doc: `
name: t
units:
  - {name: e, kind: expression, expression: "__import__('os').system('rm -rf /')"}
orchestration: {strategy: sequential, members: [e]}
`,
			unit: "e",
			code: types.ErrSandboxViolation,
		},
		{
			name: "router among candidates",
			doc: `
name: t
units:
  - {name: r, kind: llm, instruction: pick}
  - {name: x, kind: tool, tool: current_time}
orchestration: {strategy: llm_routed, router: r, candidates: [r, x]}
`,
			unit: "r",
			code: types.ErrStructural,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newHydrator(t, Options{}, nil).HydrateBytes([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, types.IsCode(err, tt.code), err.Error())
			assert.Equal(t, tt.unit, types.UnitOf(err))
		})
	}
}

func TestHydrate_DAGCycle(t *testing.T) {
	doc := `
name: cyc
units:
  - {name: a, kind: tool, tool: current_time}
  - {name: b, kind: tool, tool: current_time}
  - {name: c, kind: tool, tool: current_time}
orchestration:
  strategy: dag
  nodes:
    - {unit: a, depends_on: [c]}
    - {unit: b, depends_on: [a]}
    - {unit: c, depends_on: [b]}
`
	_, err := newHydrator(t, Options{}, nil).HydrateBytes([]byte(doc))
	var cycleErr *workflow.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"a", "b", "c"}, cycleErr.Cycle)
	assert.True(t, types.IsCode(err, types.ErrCycle))
}

func TestHydrate_StrictOutputKeys(t *testing.T) {
	doc := `
name: clash
units:
  - {name: a, kind: function, function: fetch, output_key: result}
  - {name: b, kind: function, function: fetch, output_key: result}
orchestration: {strategy: parallel, members: [a, b]}
`
	_, err := newHydrator(t, Options{}, nil).HydrateBytes([]byte(doc))
	assert.NoError(t, err, "aliasing is allowed by default")

	_, err = newHydrator(t, Options{StrictOutputKeys: true}, nil).HydrateBytes([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"result"`)
}

func TestHydrate_ValidationBeforeBuild(t *testing.T) {
	reg := workflow.NewRegistry()
	calls := 0
	stub := func(cfg workflow.LeafConfig, _ workflow.LeafDeps) (workflow.Unit, error) {
		calls++
		return nil, fmt.Errorf("unexpected build of %s", cfg.Name)
	}
	for _, k := range workflow.AllKinds() {
		if k.IsLeaf() {
			require.NoError(t, reg.Register(k, stub))
		}
	}
	h, err := NewHydrator(reg, nil, Options{}, nil)
	require.NoError(t, err)

	_, err = h.Hydrate(&WorkflowDSL{Name: "bad", Units: []UnitDef{{Name: "x", Kind: "llm"}}})
	require.Error(t, err)
	assert.Zero(t, calls)
}

func TestHydrate_RoutedEndToEnd(t *testing.T) {
	doc := `
name: support_desk
units:
  - name: triage
    kind: llm
    instruction: "Route this request: ${input}"
    output_key: route
  - {name: billing, kind: function, function: answer, params: {team: billing}, output_key: answer}
  - {name: support, kind: function, function: answer, params: {team: support}, output_key: answer}
orchestration:
  strategy: llm_routed
  router: triage
  candidates: [billing, support]
`
	wf, err := newHydrator(t, Options{}, nil).HydrateBytes([]byte(doc))
	require.NoError(t, err)

	var seen *workflow.ModelRequest
	model := workflow.ModelFunc(func(_ context.Context, req *workflow.ModelRequest) (*workflow.ModelResponse, error) {
		seen = req
		return &workflow.ModelResponse{Output: map[string]any{"agent": "support"}}, nil
	})
	res, err := workflow.NewOrchestrator(model, workflow.EngineOptions{}, nil).
		Run(context.Background(), wf, workflow.RunOptions{Input: "my printer is on fire"})
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, "Route this request: my printer is on fire", seen.Instruction)
	assert.Equal(t, []string{"billing", "support"}, seen.Candidates)
	assert.Equal(t, "support handled", res.State["answer"])
}

func TestNewHydrator_RejectsNegativeDefault(t *testing.T) {
	_, err := NewHydrator(nil, nil, Options{DefaultMaxIterations: -1}, nil)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	wf, err := newHydrator(t, Options{}, nil).HydrateBytes([]byte(fanInYAML))
	require.NoError(t, err)

	out := Describe(wf)
	assert.Contains(t, out, "workflow fan_in (dag)")
	assert.Contains(t, out, "  two fetches feeding one combine")
	assert.Contains(t, out, "  - combine [expression] -> combined")
	assert.Contains(t, out, "  wave 0: fetch_a, fetch_b\n  wave 1: combine\n")

	loop, err := newHydrator(t, Options{}, nil).HydrateBytes([]byte(`
name: l
variables:
  topic: {required: true}
units:
  - {name: s, kind: tool, tool: exit_loop}
  - {name: body, kind: sequential, children: [s]}
orchestration: {strategy: loop, members: [body], max_iterations: 2}
`))
	require.NoError(t, err)
	out = Describe(loop)
	assert.Contains(t, out, "members: body (max 2 iterations)")
	assert.Contains(t, out, "  - body [sequential] {s}")
	assert.Contains(t, out, "  - topic (required)")
}
