package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/config"
	"github.com/BaSui01/agentpipe/internal/metrics"
	"github.com/BaSui01/agentpipe/internal/server"
	"github.com/BaSui01/agentpipe/internal/telemetry"
	"github.com/BaSui01/agentpipe/session"
	"github.com/BaSui01/agentpipe/workflow"
	"github.com/BaSui01/agentpipe/workflow/dsl"
)

// =============================================================================
// ⚙️ 引擎装配
// =============================================================================

// engine 持有一次 CLI 调用所需的全部组件
type engine struct {
	orchestrator *workflow.Orchestrator
	hydrator     *dsl.Hydrator
	registry     *prometheus.Registry

	sessions      session.Store
	providers     *telemetry.Providers
	metricsServer *server.Manager
	logger        *zap.Logger
}

// newEngine 按配置装配编排器。失败时已创建的资源会被释放。
func newEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *engine, err error) {
	e := &engine{logger: logger}
	defer func() {
		if err != nil {
			_ = e.close(context.Background())
		}
	}()

	e.providers, err = telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		e.providers = nil
	}

	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollectorWith(cfg.Metrics.Namespace, e.registry, logger)

	recorder := workflow.MultiRecorder{collector}
	if e.providers.Enabled() {
		otelRecorder, recErr := telemetry.NewRecorder(e.providers.Meter())
		if recErr != nil {
			logger.Warn("otel metrics unavailable", zap.Error(recErr))
		} else {
			recorder = append(recorder, otelRecorder)
		}
	}

	if cfg.Metrics.Enabled {
		e.metricsServer = server.NewManager(
			server.MetricsHandler(e.registry, cfg.Metrics.Path, logger),
			server.Config{
				Addr:            cfg.Metrics.Addr,
				ReadTimeout:     cfg.Metrics.ReadTimeout,
				WriteTimeout:    cfg.Metrics.WriteTimeout,
				MaxHeaderBytes:  1 << 20,
				ShutdownTimeout: cfg.Metrics.ShutdownTimeout,
				TLSCertFile:     cfg.Metrics.TLSCertFile,
				TLSKeyFile:      cfg.Metrics.TLSKeyFile,
			},
			logger,
		)
		if err = e.metricsServer.Start(); err != nil {
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
	}

	e.sessions, err = session.Open(ctx, cfg.Session, logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	opts, err := cfg.Engine.EngineOptions()
	if err != nil {
		return nil, err
	}
	opts.Recorder = recorder
	opts.Tracer = e.providers.Tracer()
	// 指标中间件位于最内层，每次重试都会被计数
	opts.Middleware = append(cfg.Calls.Middleware(logger), collector.CallMiddleware())
	if e.sessions != nil {
		opts.Sessions = e.sessions
	}

	// CLI 只提供内置工具；llm 单元需要嵌入方注入 ModelClient
	e.orchestrator = workflow.NewOrchestrator(nil, opts, logger)
	e.hydrator, err = dsl.NewHydrator(nil, nil, cfg.Engine.HydratorOptions(), logger)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// close 依次关闭指标服务、会话存储与遥测导出器
func (e *engine) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if e.metricsServer != nil {
		if err := e.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if e.sessions != nil {
		if err := e.sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session store: %w", err))
		}
	}
	if err := e.providers.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errors.Join(errs...)
}
