package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetYAML = `
name: greet
description: shouts the input
units:
  - name: shout
    kind: expression
    expression: input + "!"
    output_key: shouted
  - name: done
    kind: tool
    tool: current_time
    output_key: now
orchestration:
  strategy: sequential
  members: [shout, done]
`

const counterYAML = `
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
  strategy: sequential
  members: [inc]
`

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func cli(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("AGENTPIPE_LOG_LEVEL", "error")
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decodeRun(t *testing.T, out string) map[string]any {
	t.Helper()
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	return res
}

func TestExecute_Usage(t *testing.T) {
	code, _, stderr := cli(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage:")

	code, _, stderr = cli(t, "deploy")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown command: deploy")

	code, _, stderr = cli(t, "run")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "exactly one workflow file")
}

func TestExecute_Version(t *testing.T) {
	code, stdout, _ := cli(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "AgentPipe ")
	assert.Contains(t, stdout, "Git Commit")
}

func TestExecute_ValidateAndPlan(t *testing.T) {
	path := writeWorkflow(t, greetYAML)

	code, stdout, stderr := cli(t, "validate", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, path+": ok")
	assert.Contains(t, stdout, "workflow greet (sequential)")
	assert.Contains(t, stdout, "members: shout, done")

	code, stdout, _ = cli(t, "plan", path)
	require.Equal(t, 0, code)
	assert.NotContains(t, stdout, ": ok")
	assert.Contains(t, stdout, "workflow greet (sequential)")
}

func TestExecute_ValidateRejectsBrokenWorkflow(t *testing.T) {
	path := writeWorkflow(t, `
name: broken
units:
  - name: a
    kind: expression
orchestration:
  strategy: sequential
  members: [a, ghost]
`)
	code, stdout, stderr := cli(t, "validate", path)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "ghost")
}

func TestExecute_Run(t *testing.T) {
	path := writeWorkflow(t, greetYAML)

	code, stdout, stderr := cli(t, "run", "--input", `"hi"`, path)
	require.Equal(t, 0, code, stderr)

	res := decodeRun(t, stdout)
	assert.Equal(t, "completed", res["status"])
	assert.Equal(t, "greet", res["workflow"])
	state := res["state"].(map[string]any)
	assert.Equal(t, "hi!", state["shouted"])
	assert.Contains(t, state, "now")
	assert.NotContains(t, res, "error")
}

func TestExecute_RunBadInput(t *testing.T) {
	code, _, stderr := cli(t, "run", "--input", "{not json", writeWorkflow(t, greetYAML))
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "--input")
}

func TestExecute_RunFailureStillPrintsState(t *testing.T) {
	path := writeWorkflow(t, `
name: fails
units:
  - name: ok
    kind: expression
    expression: '"first"'
    output_key: first
  - name: boom
    kind: expression
    expression: missing + 1
    output_key: never
orchestration:
  strategy: sequential
  members: [ok, boom]
`)
	code, stdout, stderr := cli(t, "run", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error:")

	res := decodeRun(t, stdout)
	assert.Equal(t, "failed", res["status"])
	assert.NotEmpty(t, res["error"])
	assert.Equal(t, "first", res["state"].(map[string]any)["first"])
}

func TestExecute_RunResumesFileSession(t *testing.T) {
	t.Setenv("AGENTPIPE_SESSION_BACKEND", "file")
	t.Setenv("AGENTPIPE_SESSION_DIR", t.TempDir())
	path := writeWorkflow(t, counterYAML)

	for i := 1; i <= 3; i++ {
		code, stdout, stderr := cli(t, "run", "--session", "demo", path)
		require.Equal(t, 0, code, stderr)
		assert.EqualValues(t, i, decodeRun(t, stdout)["state"].(map[string]any)["count"])
	}
}

func TestExecute_RunWithConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "agentpipe.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
engine:
  timezone: UTC
metrics:
  enabled: true
  addr: "127.0.0.1:0"
`), 0o644))

	code, stdout, stderr := cli(t, "run", "--config", cfgPath, "--input", `"cfg"`, writeWorkflow(t, greetYAML))
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "cfg!", decodeRun(t, stdout)["state"].(map[string]any)["shouted"])
}

func TestExecute_ExampleWorkflows(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "examples", "workflows", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			code, stdout, stderr := cli(t, "validate", path)
			require.Equal(t, 0, code, stderr)
			assert.Contains(t, stdout, path+": ok")
		})
	}

	t.Run("fan_in", func(t *testing.T) {
		code, stdout, stderr := cli(t, "run", "--input", `{"a": 3, "b": 4}`, filepath.Join("..", "..", "examples", "workflows", "fan_in.yaml"))
		require.Equal(t, 0, code, stderr)
		assert.EqualValues(t, 25, decodeRun(t, stdout)["state"].(map[string]any)["total"])
	})

	t.Run("nested", func(t *testing.T) {
		code, stdout, stderr := cli(t, "run", "--input", `{"score": 7}`, filepath.Join("..", "..", "examples", "workflows", "nested.yaml"))
		require.Equal(t, 0, code, stderr)
		state := decodeRun(t, stdout)["state"].(map[string]any)
		assert.EqualValues(t, 14, state["doubled"])
		assert.Equal(t, "pass", state["verdict"])
	})
}
