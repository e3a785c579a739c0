// =============================================================================
// 📦 测试数据工厂 - 工作流文档
// =============================================================================
// 每种编排策略一份 YAML 文档，配合 mocks.MockModel 与 Capabilities 使用
// =============================================================================
package fixtures

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentpipe/workflow"
)

// =============================================================================
// 📄 工作流文档
// =============================================================================

// Sequential 先由 llm 单元写草稿，再用表达式计算长度
const Sequential = `
name: research
description: draft then measure
variables:
  topic: {type: string, default: go}
units:
  - name: writer
    kind: llm
    instruction: "Write about ${topic}"
    output_key: draft
  - name: measure
    kind: expression
    expression: len(draft)
    output_key: length
orchestration:
  strategy: sequential
  members: [writer, measure]
`

// Parallel 并行调用两次 fetch 能力
const Parallel = `
name: gather
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
orchestration:
  strategy: parallel
  members: [fetch_a, fetch_b]
`

// Loop 每轮计数一次，critic 调用 exit_loop 后结束
const Loop = `
name: refine
variables:
  rounds: {type: int, default: 0}
units:
  - name: count
    kind: expression
    expression: rounds + 1
    input_keys: [rounds]
    output_key: rounds
  - name: critic
    kind: llm
    instruction: "Review round ${rounds}"
    tools: [exit_loop]
    output_key: review
orchestration:
  strategy: loop
  members: [count, critic]
  max_iterations: 5
`

// DAG 两个 fetch 汇入一个 combine
const DAG = `
name: fan_in
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

// React 单个 llm 单元通过 search 工具作答
const React = `
name: answer
units:
  - name: agent
    kind: llm
    instruction: "Answer: ${input}"
    tools: [search]
    planner: plan_react
    output_key: answer
orchestration:
  strategy: react
  unit: agent
`

// Routed 由 triage 在 billing 与 support 之间选择
const Routed = `
name: triage
units:
  - name: triage
    kind: llm
    instruction: "Route the ticket: ${input}"
  - name: billing
    kind: expression
    expression: '"billing team"'
    output_key: handled_by
  - name: support
    kind: expression
    expression: '"support team"'
    output_key: handled_by
orchestration:
  strategy: llm_routed
  router: triage
  candidates: [billing, support]
`

// Composite 顺序编排中嵌套并行复合单元
const Composite = `
name: nested
units:
  - name: both
    kind: parallel
    children: [fetch_a, fetch_b]
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
    output_key: combined
orchestration:
  strategy: sequential
  members: [both, combine]
`

// All 返回全部文档，键为工作流名
func All() map[string]string {
	return map[string]string{
		"research": Sequential,
		"gather":   Parallel,
		"refine":   Loop,
		"fan_in":   DAG,
		"answer":   React,
		"triage":   Routed,
		"nested":   Composite,
	}
}

// =============================================================================
// 🔧 能力
// =============================================================================

// Fetch 返回 "data-<source>"
func Fetch(_ context.Context, args map[string]any) (any, error) {
	source, ok := args["source"].(string)
	if !ok {
		return nil, fmt.Errorf("fetch: source must be a string, got %T", args["source"])
	}
	return "data-" + source, nil
}

// Capabilities 返回文档所需的能力表
func Capabilities() *workflow.CapabilityTable {
	return workflow.NewCapabilityTable().MustRegister("fetch", Fetch)
}
