// =============================================================================
// 📦 AgentPipe 默认配置
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/agentpipe/session"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		Calls:     DefaultCallsConfig(),
		Session:   session.DefaultConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Timezone:             "UTC",
		StrictOutputKeys:     false,
		MaxConcurrency:       0,
		DefaultMaxIterations: 10,
		HistoryCapacity:      100,
	}
}

// DefaultCallsConfig 返回默认调用中间件配置
func DefaultCallsConfig() CallsConfig {
	return CallsConfig{
		Timeout:                 2 * time.Minute,
		MaxRetries:              3,
		InitialBackoff:          500 * time.Millisecond,
		MaxBackoff:              10 * time.Second,
		RateLimitRPS:            0,
		RateLimitBurst:          10,
		CircuitFailureThreshold: 5,
		CircuitRecoveryTimeout:  30 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "agentpipe",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:         false,
		Namespace:       "agentpipe",
		Addr:            ":9091",
		Path:            "/metrics",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}
