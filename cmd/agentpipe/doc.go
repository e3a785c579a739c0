// Copyright (c) AgentPipe Authors.
// Licensed under the MIT License.

/*
agentpipe 是工作流编排引擎的命令行入口。

# 子命令

  - run：水合并执行一个 YAML/JSON 工作流，结果以 JSON 写到 stdout。
    --input 以 JSON 提供初始输入，--session 指定会话以恢复和保存状态。
  - validate：校验工作流并打印执行计划。
  - plan：只打印执行计划（单元、编排与 DAG 波次）。
  - version：打印版本信息。

# 配置

配置按 默认值 → --config 指定的 YAML → AGENTPIPE_* 环境变量 加载。
会话后端、调用中间件（熔断、重试、限流、超时）、日志、OpenTelemetry
与 Prometheus 指标端点均由配置决定。

退出码：0 成功，1 执行或校验失败，2 参数错误。
*/
package main
