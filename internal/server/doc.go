// Copyright (c) AgentPipe Authors.
// Licensed under the MIT License.

/*
包 server 管理 CLI 在运行期间暴露的 Prometheus 指标端点。

# 核心类型

  - Manager：封装 net/http.Server 与 net.Listener，提供非阻塞
    Start、幂等 Shutdown 与异步错误通道 Errors。
  - Config：监听地址、读写超时、优雅关闭超时与可选 TLS 证书。
  - MetricsHandler：在指定路径上暴露 prometheus.Gatherer，并附带
    /healthz 探针。

TLS 配置由 internal/tlsutil 提供（TLS 1.2+ 与 AEAD 套件）。
*/
package server
