// Copyright (c) AgentPipe Authors.
// Licensed under the MIT License.

/*
Package types 提供 AgentPipe 引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、workflow/dsl、
session 等上层模块提供统一的错误契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，携带错误码、单元名称、Retryable 标记与原因
  - 错误码分组：水合期（STRUCTURAL / CYCLE）、沙箱（SANDBOX_VIOLATION /
    UNBOUND_REFERENCE）、执行期（EXECUTION / INVALID_ROUTE / CANCELLED）、
    会话存储（STATE_STORE）

# 主要能力

  - 错误工具链：AsError / IsCode / GetErrorCode / IsRetryable / UnitOf
  - 常用构造：NewStructuralError / NewExecutionError / NewSandboxError
*/
package types
