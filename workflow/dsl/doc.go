// Copyright (c) AgentPipe Authors.
// Licensed under the MIT License.

// Package dsl 提供 YAML/JSON 声明式工作流文档的加载、校验与水合（hydration），
// 把文档转换为可执行的 workflow.Workflow。
//
// 水合分两遍：先通过 workflow.Registry 构建叶子单元（工具在此时一次性解析），
// 再按名称组装复合单元（sequential、parallel、loop）。dag 编排的波次计划在
// 水合时计算一次，之后每次运行复用。
package dsl
