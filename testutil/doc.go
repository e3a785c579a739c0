// Copyright (c) AgentPipe Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 AgentPipe 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 流事件收集: StreamRecorder 挂到上下文上，记录 unit_start、
    unit_complete、wave_start 等事件
  - 工作流辅助: Hydrate 水合 YAML/JSON 文档，AssertUnitOrder 检查
    运行历史中的执行顺序
  - 数据工具: MustJSON / MustParseJSON / AssertJSONEqual

# 子包

  - testutil/mocks: MockModel（ModelClient）、MockTool 与 MockToolset、
    MockSessionStore，均支持 Builder 模式、错误注入与调用记录
  - testutil/fixtures: 每种编排策略一份工作流文档，以及文档所需的
    fetch 能力

# 使用示例

	model := mocks.NewMockModel().WithRoute("triage", "support")
	wf := testutil.Hydrate(t, fixtures.Routed, resolver, dsl.Options{})
	res, err := workflow.NewOrchestrator(model, workflow.EngineOptions{}, nil).
	    Run(testutil.TestContext(t), wf, workflow.RunOptions{Input: "help"})
*/
package testutil
