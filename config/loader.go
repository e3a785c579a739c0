// =============================================================================
// 📦 AgentPipe 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentpipe.yaml").
//	    WithEnvPrefix("AGENTPIPE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentpipe/session"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentPipe 的完整配置结构
type Config struct {
	// Engine 编排引擎配置
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// Calls 模型/工具调用的中间件配置
	Calls CallsConfig `yaml:"calls" env:"CALLS"`

	// Session 会话持久化配置
	Session session.Config `yaml:"session" env:"SESSION"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// EngineConfig 编排引擎配置
type EngineConfig struct {
	// IANA 时区名，用于 current_date 等平台键
	Timezone string `yaml:"timezone" env:"TIMEZONE"`
	// 同一并行组或 DAG 波次内禁止共享 output_key
	StrictOutputKeys bool `yaml:"strict_output_keys" env:"STRICT_OUTPUT_KEYS"`
	// 并发上限，0 表示不限制
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	// 未声明 max_iterations 的循环使用的上限，0 表示不限制
	DefaultMaxIterations int `yaml:"default_max_iterations" env:"DEFAULT_MAX_ITERATIONS"`
	// 内存中保留的运行历史条数，0 表示不保留
	HistoryCapacity int `yaml:"history_capacity" env:"HISTORY_CAPACITY"`
}

// CallsConfig 调用中间件配置
type CallsConfig struct {
	// 单次调用超时，0 表示不限制
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数，0 表示不重试
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 初始退避
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"INITIAL_BACKOFF"`
	// 最大退避
	MaxBackoff time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
	// 每秒调用数，0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 熔断阈值，0 表示关闭熔断
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" env:"CIRCUIT_FAILURE_THRESHOLD"`
	// 熔断恢复时间
	CircuitRecoveryTimeout time.Duration `yaml:"circuit_recovery_timeout" env:"CIRCUIT_RECOVERY_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 使用明文 gRPC 连接
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// HTTP 路径
	Path string `yaml:"path" env:"PATH"`
	// TLS 证书（可选）
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	// TLS 私钥（可选）
	TLSKeyFile string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTPIPE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段，键名为 PREFIX_SECTION_FIELD
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置，返回全部问题
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Engine.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Engine.MaxConcurrency < 0 {
		errs = append(errs, errors.New("engine.max_concurrency must not be negative"))
	}
	if c.Engine.DefaultMaxIterations < 0 {
		errs = append(errs, errors.New("engine.default_max_iterations must not be negative"))
	}
	if c.Engine.HistoryCapacity < 0 {
		errs = append(errs, errors.New("engine.history_capacity must not be negative"))
	}

	if c.Calls.Timeout < 0 || c.Calls.InitialBackoff < 0 || c.Calls.MaxBackoff < 0 {
		errs = append(errs, errors.New("calls durations must not be negative"))
	}
	if c.Calls.MaxRetries < 0 {
		errs = append(errs, errors.New("calls.max_retries must not be negative"))
	}
	if c.Calls.RateLimitRPS < 0 {
		errs = append(errs, errors.New("calls.rate_limit_rps must not be negative"))
	}
	if c.Calls.RateLimitRPS > 0 && c.Calls.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("calls.rate_limit_burst must be positive when rate limiting is enabled"))
	}

	if err := c.Session.Validate(); err != nil {
		errs = append(errs, err)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, errors.New("telemetry.sample_rate must be between 0 and 1"))
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, errors.New("telemetry.otlp_endpoint is required when telemetry is enabled"))
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, fmt.Errorf("metrics.addr: %w", err))
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			errs = append(errs, errors.New("metrics.path must start with /"))
		}
		if (c.Metrics.TLSCertFile == "") != (c.Metrics.TLSKeyFile == "") {
			errs = append(errs, errors.New("metrics.tls_cert_file and metrics.tls_key_file must be set together"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}
