// Copyright (c) AgentPipe Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的编排引擎指标采集。

Collector 实现 workflow.MetricsRecorder，记录运行、单元、DAG 波次、
路由选择与沙箱拒绝；CallMiddleware 记录模型、工具与函数调用的耗时和结果。

# 指标

  - <ns>_runs_total / <ns>_run_duration_seconds
  - <ns>_unit_executions_total / <ns>_unit_duration_seconds
  - <ns>_dag_waves_total / <ns>_dag_wave_size
  - <ns>_route_selections_total
  - <ns>_sandbox_violations_total
  - <ns>_calls_total / <ns>_call_duration_seconds
*/
package metrics
