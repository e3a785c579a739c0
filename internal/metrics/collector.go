package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
	"github.com/BaSui01/agentpipe/workflow"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 运行指标
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// 单元指标
	unitExecutionsTotal *prometheus.CounterVec
	unitDuration        *prometheus.HistogramVec

	// DAG 指标
	wavesTotal *prometheus.CounterVec
	waveSize   *prometheus.HistogramVec

	// 路由与沙箱
	routeSelections   *prometheus.CounterVec
	sandboxViolations *prometheus.CounterVec

	// 外部调用指标
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec

	logger *zap.Logger
}

var _ workflow.MetricsRecorder = (*Collector)(nil)

// NewCollector 创建指标收集器并注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWith 创建指标收集器并注册到 reg
func NewCollectorWith(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 运行指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"workflow", "strategy", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"workflow", "strategy"},
	)

	// 单元指标
	c.unitExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_executions_total",
			Help:      "Total number of unit executions",
		},
		[]string{"workflow", "unit", "kind", "status"},
	)

	c.unitDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Unit execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"workflow", "kind"},
	)

	// DAG 指标
	c.wavesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dag_waves_total",
			Help:      "Total number of DAG waves started",
		},
		[]string{"workflow"},
	)

	c.waveSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dag_wave_size",
			Help:      "Number of units per DAG wave",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 7),
		},
		[]string{"workflow"},
	)

	// 路由与沙箱
	c.routeSelections = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_selections_total",
			Help:      "Total number of llm_routed selections",
		},
		[]string{"workflow", "router", "selected"},
	)

	c.sandboxViolations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_violations_total",
			Help:      "Total number of expressions rejected by the sandbox",
		},
		[]string{"workflow", "unit"},
	)

	// 外部调用指标
	c.callsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of model, tool and function calls",
		},
		[]string{"kind", "target", "status"},
	)

	c.callDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "External call duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind", "target"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordRun 记录一次工作流运行
func (c *Collector) RecordRun(wf, strategy, status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(wf, strategy, status).Inc()
	c.runDuration.WithLabelValues(wf, strategy).Observe(duration.Seconds())
}

// RecordUnit 记录一次单元执行
func (c *Collector) RecordUnit(wf, unit, kind, status string, duration time.Duration) {
	c.unitExecutionsTotal.WithLabelValues(wf, unit, kind, status).Inc()
	c.unitDuration.WithLabelValues(wf, kind).Observe(duration.Seconds())
}

// RecordWave 记录一个 DAG 波次
func (c *Collector) RecordWave(wf string, _ int, size int) {
	c.wavesTotal.WithLabelValues(wf).Inc()
	c.waveSize.WithLabelValues(wf).Observe(float64(size))
}

// RecordRoute 记录路由选择
func (c *Collector) RecordRoute(wf, router, selected string) {
	c.routeSelections.WithLabelValues(wf, router, selected).Inc()
}

// RecordSandboxViolation 记录沙箱拒绝
func (c *Collector) RecordSandboxViolation(wf, unit string) {
	c.sandboxViolations.WithLabelValues(wf, unit).Inc()
	c.logger.Warn("sandbox violation", zap.String("workflow", wf), zap.String("unit", unit))
}

// CallMiddleware 返回记录外部调用耗时与结果的中间件
func (c *Collector) CallMiddleware() workflow.CallMiddleware {
	return func(next workflow.CallFunc) workflow.CallFunc {
		return func(ctx context.Context, call workflow.Call) (any, error) {
			start := time.Now()
			out, err := next(ctx, call)
			c.callsTotal.WithLabelValues(string(call.Kind), call.Target, callStatus(err)).Inc()
			c.callDuration.WithLabelValues(string(call.Kind), call.Target).Observe(time.Since(start).Seconds())
			return out, err
		}
	}
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled), types.IsCode(err, types.ErrCancelled):
		return "cancelled"
	default:
		return "error"
	}
}
