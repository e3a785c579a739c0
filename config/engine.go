package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentpipe/workflow"
	"github.com/BaSui01/agentpipe/workflow/dsl"
)

// Location 解析时区，空值为 UTC
func (e EngineConfig) Location() (*time.Location, error) {
	if e.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

// EngineOptions 转换为编排器选项。Recorder、Tracer、Sessions 与
// Middleware 由调用方按需填充。
func (e EngineConfig) EngineOptions() (workflow.EngineOptions, error) {
	loc, err := e.Location()
	if err != nil {
		return workflow.EngineOptions{}, err
	}
	opts := workflow.EngineOptions{
		Location:       loc,
		MaxConcurrency: e.MaxConcurrency,
	}
	if e.HistoryCapacity > 0 {
		opts.History = workflow.NewHistoryStore(e.HistoryCapacity)
	}
	return opts, nil
}

// HydratorOptions 转换为 DSL 水合选项
func (e EngineConfig) HydratorOptions() dsl.Options {
	return dsl.Options{
		StrictOutputKeys:     e.StrictOutputKeys,
		DefaultMaxIterations: e.DefaultMaxIterations,
	}
}

// Middleware 按配置组装调用中间件，顺序由外到内:
// 熔断 → 重试 → 限流 → 超时。未启用的项被跳过。
func (c CallsConfig) Middleware(logger *zap.Logger) []workflow.CallMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	var mws []workflow.CallMiddleware

	if c.CircuitFailureThreshold > 0 {
		cb := workflow.DefaultCircuitBreakerConfig()
		cb.FailureThreshold = c.CircuitFailureThreshold
		if c.CircuitRecoveryTimeout > 0 {
			cb.RecoveryTimeout = c.CircuitRecoveryTimeout
		}
		mws = append(mws, workflow.CircuitBreakerMiddleware(workflow.NewCircuitBreakerRegistry(cb, logger)))
	}

	if c.MaxRetries > 0 {
		retry := workflow.DefaultRetryConfig()
		retry.MaxRetries = c.MaxRetries
		if c.InitialBackoff > 0 {
			retry.InitialBackoff = c.InitialBackoff
		}
		if c.MaxBackoff > 0 {
			retry.MaxBackoff = c.MaxBackoff
		}
		mws = append(mws, workflow.RetryMiddleware(retry, logger))
	}

	if c.RateLimitRPS > 0 {
		mws = append(mws, workflow.RateLimitMiddleware(rate.NewLimiter(rate.Limit(c.RateLimitRPS), c.RateLimitBurst)))
	}

	if c.Timeout > 0 {
		mws = append(mws, workflow.TimeoutMiddleware(c.Timeout))
	}

	return mws
}
