package dsl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentpipe/testutil"
	"github.com/BaSui01/agentpipe/testutil/fixtures"
	"github.com/BaSui01/agentpipe/testutil/mocks"
	"github.com/BaSui01/agentpipe/workflow"
	"github.com/BaSui01/agentpipe/workflow/dsl"
)

type fixtureEnv struct {
	model    *mocks.MockModel
	search   *mocks.MockTool
	sessions *mocks.MockSessionStore
	resolver *workflow.ToolResolver
}

func newFixtureEnv() *fixtureEnv {
	search := mocks.NewMockTool("search").WithResult([]any{"hit-1", "hit-2"})
	return &fixtureEnv{
		model:    mocks.NewMockModel(),
		search:   search,
		sessions: mocks.NewMockSessionStore(),
		resolver: workflow.NewToolResolver(
			workflow.WithToolsets(mocks.NewMockToolset(search)),
			workflow.WithCapabilities(fixtures.Capabilities()),
		),
	}
}

func (e *fixtureEnv) run(t *testing.T, doc string, opts workflow.RunOptions) (*workflow.RunResult, *testutil.StreamRecorder) {
	t.Helper()
	wf := testutil.Hydrate(t, doc, e.resolver, dsl.Options{})
	orch := workflow.NewOrchestrator(e.model, workflow.EngineOptions{Sessions: e.sessions}, nil)
	rec := testutil.NewStreamRecorder()
	res, err := orch.Run(rec.Context(testutil.TestContext(t)), wf, opts)
	require.NoError(t, err)
	return res, rec
}

func TestFixtures_AllHydrate(t *testing.T) {
	env := newFixtureEnv()
	for name, doc := range fixtures.All() {
		t.Run(name, func(t *testing.T) {
			wf := testutil.Hydrate(t, doc, env.resolver, dsl.Options{StrictOutputKeys: true})
			assert.Equal(t, name, wf.Name())
			assert.Contains(t, dsl.Describe(wf), "workflow "+name)
		})
	}
}

func TestFixtures_Sequential(t *testing.T) {
	env := newFixtureEnv()
	env.model.WithOutput("writer", "four")

	res, rec := env.run(t, fixtures.Sequential, workflow.RunOptions{})
	assert.EqualValues(t, 4, res.State["length"])
	testutil.AssertUnitOrder(t, res.History, "writer", "measure")
	assert.Equal(t, []string{"writer", "measure"}, rec.Units(workflow.WorkflowEventUnitComplete))

	calls := env.model.CallsFor("writer")
	require.Len(t, calls, 1)
	assert.Equal(t, "Write about go", calls[0].Request.Instruction)
}

func TestFixtures_ParallelAndDAG(t *testing.T) {
	env := newFixtureEnv()

	res, _ := env.run(t, fixtures.Parallel, workflow.RunOptions{})
	assert.Equal(t, "data-a", res.State["a"])
	assert.Equal(t, "data-b", res.State["b"])

	res, rec := env.run(t, fixtures.DAG, workflow.RunOptions{})
	assert.Equal(t, "data-a+data-b", res.State["combined"])
	assert.Equal(t, [][]string{{"fetch_a", "fetch_b"}, {"combine"}}, res.History.Waves)
	assert.Len(t, rec.OfType(workflow.WorkflowEventWaveStart), 2)
}

func TestFixtures_LoopExitsWhenCriticEscalates(t *testing.T) {
	env := newFixtureEnv()
	env.model.WithOutput("critic", "good enough").WithToolCall("critic", workflow.ToolExitLoop, nil)

	res, _ := env.run(t, fixtures.Loop, workflow.RunOptions{})
	assert.EqualValues(t, 1, res.State["rounds"])
	assert.Equal(t, "good enough", res.State["review"])
	assert.Equal(t, 1, env.model.CallCount())
}

func TestFixtures_LoopStopsAtBound(t *testing.T) {
	env := newFixtureEnv()

	res, _ := env.run(t, fixtures.Loop, workflow.RunOptions{})
	assert.EqualValues(t, 5, res.State["rounds"])
	assert.Equal(t, 5, env.model.CallCount())
}

func TestFixtures_ReactUsesToolset(t *testing.T) {
	env := newFixtureEnv()
	env.model.WithOutput("agent", "42").WithToolCall("agent", "search", map[string]any{"q": "meaning"})

	res, _ := env.run(t, fixtures.React, workflow.RunOptions{Input: "what is the meaning"})
	assert.Equal(t, "42", res.State["answer"])

	calls := env.search.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "agent", calls[0].Unit)
	assert.Equal(t, map[string]any{"q": "meaning"}, calls[0].Args)

	modelCalls := env.model.CallsFor("agent")
	require.Len(t, modelCalls, 1)
	assert.Equal(t, workflow.PlannerPlanReAct, modelCalls[0].Request.Planner)
	assert.Equal(t, []any{[]any{"hit-1", "hit-2"}}, modelCalls[0].ToolResults)
}

func TestFixtures_Routed(t *testing.T) {
	env := newFixtureEnv()
	env.model.WithRoute("triage", "support")

	res, rec := env.run(t, fixtures.Routed, workflow.RunOptions{Input: "login broken"})
	assert.Equal(t, "support team", res.State["handled_by"])
	assert.Equal(t, "support", res.History.Route)

	routes := rec.OfType(workflow.WorkflowEventRouteSelected)
	require.Len(t, routes, 1)
	assert.Equal(t, "support", routes[0].Data)
	assert.Equal(t, []string{"billing", "support"}, env.model.CallsFor("triage")[0].Request.Candidates)
}

func TestFixtures_CompositeAndSessions(t *testing.T) {
	env := newFixtureEnv()

	res, _ := env.run(t, fixtures.Composite, workflow.RunOptions{SessionID: "nested-1"})
	assert.Equal(t, "data-a+data-b", res.State["combined"])

	snap, ok := env.sessions.Snapshot("nested-1")
	require.True(t, ok)
	assert.Equal(t, "data-a+data-b", snap["combined"])
	assert.Equal(t, 1, env.sessions.LoadCalls())
	assert.Equal(t, 1, env.sessions.SaveCalls())
}

func TestHydratedExpressionReadsRunInput(t *testing.T) {
	env := newFixtureEnv()
	doc := `
name: doubler
units:
  - name: double
    kind: expression
    expression: input["n"] * 2
    output_key: doubled
  - name: stamp
    kind: expression
    expression: timezone + " " + current_date
    output_key: stamp
orchestration:
  strategy: sequential
  members: [double, stamp]
`
	res, _ := env.run(t, doc, workflow.RunOptions{Input: map[string]any{"n": int64(21)}})
	assert.EqualValues(t, 42, res.State["doubled"])
	assert.Contains(t, res.State["stamp"], "UTC ")
}
