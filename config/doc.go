// Copyright (c) AgentPipe Authors.
// Licensed under the MIT License.

// Package config 提供 AgentPipe 的配置加载。
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（前缀 AGENTPIPE）。
// EngineConfig 显式转换为 workflow.EngineOptions 与 dsl.Options，
// 引擎内部不读取任何全局配置。
package config
