// Copyright (c) AgentPipe Authors.
// Licensed under the MIT License.

/*
Package workflow 提供声明式工作流的执行引擎。

# 概述

workflow 包把水合（hydration）得到的单元图交给 Orchestrator 执行。单元分为
叶子单元（llm / function / tool / expression）与组合单元（sequential /
parallel / loop），它们通过同一次运行共享的 State 交换数据：写入只经由单元
声明的 output_key，读取只经由 input_keys 或指令/参数中的 ${key} 模板。

# 核心接口与类型

  - Unit / Kind        — 统一执行契约与封闭的单元类型集合
  - UnitGraph          — 名称到可执行单元的映射，水合后不可变
  - State              — 有序的运行期键值存储，注入 current_date / current_datetime / timezone
  - Registry           — 叶子类型工厂注册表，由 RegisterBuiltinKinds 显式填充
  - ToolResolver       — 自定义注册表 → Toolset → 内置工具 → 能力表 的解析链
  - PlanWaves          — Kahn 分层得到执行波次，有环时返回 *CycleError
  - Scheduler          — 逐波执行，波内并发（errgroup）
  - Orchestrator       — sequential / parallel / loop / dag / react / llm_routed 六种策略
  - CallMiddleware     — 外部调用插件：重试、限流、超时、熔断

# 主要能力

  - 循环完成信号：内置 exit_loop 工具调用 ToolContext.Escalate()
  - 条件工具：evaluate_condition 在调用时经沙箱校验表达式
  - 严格模式：CheckDisjointOutputKeys 拒绝同一并发组内共享 output_key 的单元
  - 可观测性：MetricsRecorder、OpenTelemetry span、WorkflowStreamEmitter 事件
  - 执行历史：RunHistory + HistoryStore 记录每个单元的起止、耗时与错误
  - 会话：SessionStore 在运行开始读取快照、结束时写回
*/
package workflow
