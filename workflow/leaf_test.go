package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentpipe/types"
)

func TestLLMUnit_RequestShape(t *testing.T) {
	lookup := NewFuncTool("lookup", "find a record", func(_ context.Context, args map[string]any) (any, error) {
		return "record:" + args["id"].(string), nil
	})

	model := newScriptedModel().on("writer", func(ctx context.Context, req *ModelRequest) (any, error) {
		require.Len(t, req.Tools, 1)
		return req.CallTool(ctx, "lookup", map[string]any{"id": "7"})
	})
	u := NewLLMUnit(LLMUnitConfig{
		Name:        "writer",
		OutputKey:   "draft",
		InputKeys:   []string{"topic", "absent"},
		Model:       "gemini-2.0-flash",
		Instruction: "write about ${topic}",
		Tools:       []Tool{lookup},
		Config:      map[string]any{"temperature": 0.2},
	})

	inv := NewInvocation("run-1", NewStateFrom(map[string]any{"topic": "owls"}))
	inv.models = model

	out, err := inv.execute(context.Background(), u, position{})
	require.NoError(t, err)
	assert.Equal(t, "record:7", out)

	draft, _ := inv.State.Get("draft")
	assert.Equal(t, "record:7", draft)

	req := model.requestsFor("writer")[0]
	assert.Equal(t, "write about owls", req.Instruction)
	assert.Equal(t, "gemini-2.0-flash", req.Model)
	assert.Equal(t, map[string]any{"topic": "owls"}, req.Inputs)
	assert.Equal(t, []ToolSpec{{Name: "lookup", Description: "find a record"}}, req.Tools)
	assert.Equal(t, 0.2, req.Config["temperature"])
	assert.Equal(t, []string{"lookup"}, u.Tools())
}

func TestLLMUnit_UnknownToolCall(t *testing.T) {
	model := newScriptedModel().on("u", func(ctx context.Context, req *ModelRequest) (any, error) {
		return req.CallTool(ctx, "nope", nil)
	})
	u := NewLLMUnit(LLMUnitConfig{Name: "u", Instruction: "x", Tools: []Tool{NewFuncTool("t", "", func(context.Context, map[string]any) (any, error) { return nil, nil })}})
	inv := NewInvocation("r", nil)
	inv.models = model

	_, err := inv.execute(context.Background(), u, position{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrExecution))
}

func TestLLMUnit_MissingTemplateKeyLeavesOutputUnset(t *testing.T) {
	u := NewLLMUnit(LLMUnitConfig{Name: "u", OutputKey: "out", Instruction: "about ${missing}"})
	inv := NewInvocation("r", nil)
	inv.models = newScriptedModel()

	_, err := inv.execute(context.Background(), u, position{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingStateKey)
	assert.False(t, inv.State.Has("out"))
}

func TestLLMUnit_NoModelConfigured(t *testing.T) {
	u := NewLLMUnit(LLMUnitConfig{Name: "u", Instruction: "x"})
	_, err := NewInvocation("r", nil).execute(context.Background(), u, position{})
	require.Error(t, err)
	assert.Equal(t, "u", types.UnitOf(err))
}

func TestFunctionUnit_ArgsFromInputsAndParams(t *testing.T) {
	var got map[string]any
	fn := func(_ context.Context, args map[string]any) (any, error) {
		got = args
		return len(args), nil
	}
	u := NewFunctionUnit("f", "", "n", []string{"a", "b"}, "collect", fn, map[string]any{
		"b":     "override ${a}",
		"fixed": 1,
	})
	inv := NewInvocation("r", NewStateFrom(map[string]any{"a": "A", "b": "B"}))

	out, err := inv.execute(context.Background(), u, position{})
	require.NoError(t, err)
	assert.Equal(t, 3, out)
	assert.Equal(t, map[string]any{"a": "A", "b": "override A", "fixed": 1}, got)
	assert.Equal(t, "collect", u.Function())
}

func TestFunctionUnit_ErrorIsExecutionError(t *testing.T) {
	boom := errors.New("downstream 503")
	u := NewFunctionUnit("f", "", "out", nil, "fail", func(context.Context, map[string]any) (any, error) { return nil, boom }, nil)
	inv := NewInvocation("r", nil)

	_, err := inv.execute(context.Background(), u, position{})
	require.ErrorIs(t, err, boom)
	assert.True(t, types.IsCode(err, types.ErrExecution))
	assert.Equal(t, "f", types.UnitOf(err))
	assert.False(t, inv.State.Has("out"))
}

func TestToolUnit_RendersParams(t *testing.T) {
	echo := NewFuncTool("echo", "", func(_ context.Context, args map[string]any) (any, error) { return args["msg"], nil })
	u := NewToolUnit("t", "", "said", nil, echo, map[string]any{"msg": "hi ${who}"})
	inv := NewInvocation("r", NewStateFrom(map[string]any{"who": "bob"}))

	_, err := inv.execute(context.Background(), u, position{})
	require.NoError(t, err)
	said, _ := inv.State.Get("said")
	assert.Equal(t, "hi bob", said)
	assert.Equal(t, "echo", u.Tool())
}

func TestExpressionUnit(t *testing.T) {
	t.Run("evaluates against referenced keys", func(t *testing.T) {
		u, err := NewExpressionUnit("score", "", "total", nil, "sum(scores) + bonus")
		require.NoError(t, err)
		inv := NewInvocation("r", NewStateFrom(map[string]any{"scores": []any{int64(1), int64(2)}, "bonus": int64(10)}))

		out, err := inv.execute(context.Background(), u, position{})
		require.NoError(t, err)
		assert.EqualValues(t, 13, out)
		assert.Equal(t, "sum(scores) + bonus", u.Expression())
	})

	t.Run("declared input keys limit bindings", func(t *testing.T) {
		u, err := NewExpressionUnit("e", "", "out", []string{"a"}, "a + b")
		require.NoError(t, err)
		inv := NewInvocation("r", NewStateFrom(map[string]any{"a": int64(1), "b": int64(2)}))

		_, err = inv.execute(context.Background(), u, position{})
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrUnboundReference))
		assert.False(t, inv.State.Has("out"))
	})

	t.Run("violations rejected at construction", func(t *testing.T) {
		for _, expr := range []string{"__import__('os')", "x.__class__", "open('f')"} {
			_, err := NewExpressionUnit("bad", "", "out", nil, expr)
			require.Error(t, err, expr)
			assert.True(t, types.IsCode(err, types.ErrSandboxViolation), expr)
			assert.Equal(t, "bad", types.UnitOf(err))
		}
	})

	t.Run("syntax errors", func(t *testing.T) {
		_, err := NewExpressionUnit("bad", "", "", nil, "1 +")
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrExpressionInvalid))
	})
}

func TestComposites(t *testing.T) {
	log := &traceLog{}
	mk := func(name string) *funcUnit {
		return newFuncUnit(name, name, func(context.Context, *Invocation) (any, error) {
			log.add(name)
			return name, nil
		})
	}

	seq := NewSequentialUnit("seq", "", "seq_out", []Unit{mk("s1"), mk("s2")})
	par := NewParallelUnit("par", "", "par_out", []Unit{mk("p1"), mk("p2")})
	root := NewSequentialUnit("root", "", "", []Unit{seq, par})
	inv := NewInvocation("r", nil)

	_, err := inv.execute(context.Background(), root, position{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, log.get()[:2])
	assert.ElementsMatch(t, []string{"p1", "p2"}, log.get()[2:])

	seqOut, _ := inv.State.Get("seq_out")
	assert.Equal(t, "s2", seqOut)
	parOut, _ := inv.State.Get("par_out")
	assert.Equal(t, map[string]any{"p1": "p1", "p2": "p2"}, parOut)

	assert.Len(t, root.Children(), 2)
	assert.ElementsMatch(t, []string{"seq_out", "s1", "s2", "par_out", "p1", "p2"}, WrittenKeys(root))
}

func TestLoopUnit_Unbounded(t *testing.T) {
	var n int
	body := newFuncUnit("body", "", func(ctx context.Context, inv *Invocation) (any, error) {
		n++
		if n == 7 {
			inv.Escalate(ctx)
		}
		return n, nil
	})
	loop := NewLoopUnit("loop", "", "last", []Unit{body}, 0)
	inv := NewInvocation("r", nil)

	out, err := inv.execute(context.Background(), loop, position{})
	require.NoError(t, err)
	assert.Equal(t, 7, out)
	assert.False(t, inv.Escalated(context.Background()))
	assert.Equal(t, 0, loop.MaxIterations())
}
