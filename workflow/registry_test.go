package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentpipe/types"
)

func TestKinds_ClosedSet(t *testing.T) {
	for _, k := range AllKinds() {
		assert.NotEqual(t, k.IsLeaf(), k.IsComposite(), "kind %s must be exactly one of leaf/composite", k)
		parsed, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("agent")
	assert.Error(t, err)
}

func TestRegisterBuiltinKinds_CoversEveryLeafKind(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltinKinds(reg))

	for _, k := range AllKinds() {
		_, ok := reg.Lookup(k)
		assert.Equal(t, k.IsLeaf(), ok, "kind %s", k)
	}
	assert.Equal(t, []Kind{KindExpression, KindFunction, KindLLM, KindTool}, reg.Kinds())

	// A second registration of the same kinds is refused.
	assert.Error(t, RegisterBuiltinKinds(reg))
}

func TestRegistry_RegisterAndReplace(t *testing.T) {
	reg := NewRegistry()
	stub := func(cfg LeafConfig, _ LeafDeps) (Unit, error) { return constUnit(cfg.Name, cfg.OutputKey, "stub"), nil }

	require.NoError(t, reg.Register(KindLLM, stub))
	assert.Error(t, reg.Register(KindLLM, stub))
	assert.Error(t, reg.Register(KindLoop, stub), "composite kinds have no factory")
	assert.Error(t, reg.Register(KindTool, nil))
	require.NoError(t, reg.Replace(KindLLM, stub))

	u, err := reg.Build(LeafConfig{Name: "x", Kind: KindLLM}, LeafDeps{})
	require.NoError(t, err)
	assert.Equal(t, "x", u.Name())

	_, err = reg.Build(LeafConfig{Name: "y", Kind: KindExpression}, LeafDeps{})
	assert.True(t, types.IsCode(err, types.ErrStructural))
}

func TestBuiltinFactories(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltinKinds(reg))

	caps := NewCapabilityTable().MustRegister("double", func(_ context.Context, args map[string]any) (any, error) {
		return args["n"].(int) * 2, nil
	})
	custom := NewToolRegistry(NewFuncTool("search", "", func(context.Context, map[string]any) (any, error) { return "hits", nil }))
	deps := LeafDeps{Resolver: NewToolResolver(WithCustomTools(custom), WithCapabilities(caps))}

	t.Run("llm resolves tools across tiers", func(t *testing.T) {
		u, err := reg.Build(LeafConfig{
			Name: "agent", Kind: KindLLM, Instruction: "go",
			Tools: []string{"search", ToolExitLoop, "double"},
		}, deps)
		require.NoError(t, err)
		assert.Equal(t, []string{"search", ToolExitLoop, "double"}, u.(*LLMUnit).Tools())
	})

	t.Run("llm unresolved tool", func(t *testing.T) {
		_, err := reg.Build(LeafConfig{Name: "agent", Kind: KindLLM, Instruction: "go", Tools: []string{"ghost"}}, deps)
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrStructural))
		assert.Equal(t, "agent", types.UnitOf(err))
		assert.ErrorIs(t, err, ErrToolNotFound)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("llm bad planner", func(t *testing.T) {
		_, err := reg.Build(LeafConfig{Name: "agent", Kind: KindLLM, Instruction: "go", Planner: "tree_of_thought"}, deps)
		assert.True(t, types.IsCode(err, types.ErrStructural))
	})

	t.Run("function", func(t *testing.T) {
		u, err := reg.Build(LeafConfig{Name: "f", Kind: KindFunction, Function: "double", OutputKey: "d", Params: map[string]any{"n": 21}}, deps)
		require.NoError(t, err)
		out, err := NewInvocation("r", nil).execute(context.Background(), u, position{})
		require.NoError(t, err)
		assert.Equal(t, 42, out)

		_, err = reg.Build(LeafConfig{Name: "f", Kind: KindFunction, Function: "pkg.module.func"}, deps)
		assert.True(t, types.IsCode(err, types.ErrStructural))
	})

	t.Run("tool", func(t *testing.T) {
		u, err := reg.Build(LeafConfig{Name: "t", Kind: KindTool, Tool: "search"}, deps)
		require.NoError(t, err)
		assert.Equal(t, KindTool, u.Kind())

		_, err = reg.Build(LeafConfig{Name: "t", Kind: KindTool}, deps)
		assert.True(t, types.IsCode(err, types.ErrStructural))
	})

	t.Run("expression", func(t *testing.T) {
		_, err := reg.Build(LeafConfig{Name: "e", Kind: KindExpression, Expression: "__import__('os').system('ls')"}, deps)
		assert.True(t, types.IsCode(err, types.ErrSandboxViolation))

		u, err := reg.Build(LeafConfig{Name: "e", Kind: KindExpression, Expression: "abs(-5)"}, deps)
		require.NoError(t, err)
		out, err := NewInvocation("r", nil).execute(context.Background(), u, position{})
		require.NoError(t, err)
		assert.EqualValues(t, 5, out)
	})
}
