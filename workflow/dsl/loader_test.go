package dsl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fanInYAML = `
version: "1"
name: fan_in
description: two fetches feeding one combine
units:
  - name: fetch_a
    kind: function
    function: fetch
    params: {source: a}
    output_key: a
  - name: fetch_b
    kind: function
    function: fetch
    params: {source: b}
    output_key: b
  - name: combine
    kind: expression
    expression: a + "+" + b
    input_keys: [a, b]
    output_key: combined
orchestration:
  strategy: dag
  nodes:
    - unit: fetch_a
    - unit: fetch_b
    - unit: combine
      depends_on: [fetch_a, fetch_b]
`

func TestLoad_YAML(t *testing.T) {
	doc, err := Load([]byte(fanInYAML))
	require.NoError(t, err)

	assert.Equal(t, "fan_in", doc.Name)
	require.Len(t, doc.Units, 3)
	assert.Equal(t, "function", doc.Units[0].Kind)
	assert.Equal(t, map[string]any{"source": "a"}, doc.Units[0].Params)
	require.NotNil(t, doc.Orchestration)
	assert.Equal(t, "dag", doc.Orchestration.Strategy)
	assert.Equal(t, []string{"fetch_a", "fetch_b"}, doc.Orchestration.Nodes[2].DependsOn)
}

func TestLoad_JSON(t *testing.T) {
	doc, err := Load([]byte(`{
		"name": "loop",
		"units": [{"name": "step", "kind": "tool", "tool": "exit_loop"}],
		"orchestration": {"strategy": "loop", "members": ["step"], "max_iterations": 3}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "loop", doc.Name)
	require.NotNil(t, doc.Orchestration.MaxIterations)
	assert.Equal(t, 3, *doc.Orchestration.MaxIterations)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", "  \n"},
		{"unknown yaml field", "name: x\nunits: []\nsteps: {}\n"},
		{"unknown json field", `{"name": "x", "entry": "a"}`},
		{"malformed yaml", "name: [unclosed"},
		{"malformed json", `{"name": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fanInYAML), 0o600))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fan_in", doc.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
