package workflow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState 熔断器状态
type CircuitState int

const (
	// CircuitClosed 正常状态，允许调用通过
	CircuitClosed CircuitState = iota
	// CircuitOpen 熔断状态，拒绝所有调用
	CircuitOpen
	// CircuitHalfOpen 半开状态，允许有限的探测调用
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	// FailureThreshold 连续失败次数阈值，达到后触发熔断
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	// RecoveryTimeout 熔断后等待进入半开的时间
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`
	// HalfOpenMaxProbes 半开状态允许的探测调用数
	HalfOpenMaxProbes int `json:"half_open_max_probes" yaml:"half_open_max_probes"`
	// SuccessThresholdInHalfOpen 半开状态下连续成功多少次后恢复
	SuccessThresholdInHalfOpen int `json:"success_threshold_in_half_open" yaml:"success_threshold_in_half_open"`
}

// DefaultCircuitBreakerConfig 默认熔断器配置
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:           5,
		RecoveryTimeout:            30 * time.Second,
		HalfOpenMaxProbes:          3,
		SuccessThresholdInHalfOpen: 2,
	}
}

// ErrCircuitOpen is returned for calls rejected by an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker guards calls to one collaborator target (a model or a tool).
type CircuitBreaker struct {
	target          string
	config          CircuitBreakerConfig
	state           CircuitState
	failures        int
	successes       int
	lastFailureTime time.Time
	probeCount      int
	clock           func() time.Time
	logger          *zap.Logger
	mu              sync.Mutex
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(target string, config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		target: target,
		config: config,
		state:  CircuitClosed,
		clock:  time.Now,
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("target", target)),
	}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		elapsed := cb.clock().Sub(cb.lastFailureTime)
		if elapsed >= cb.config.RecoveryTimeout {
			cb.transitionTo(CircuitHalfOpen, "recovery timeout elapsed")
			cb.probeCount = 1
			cb.successes = 0
			return nil
		}
		return fmt.Errorf("%w for %s: %d consecutive failures, retry after %v",
			ErrCircuitOpen, cb.target, cb.failures, cb.config.RecoveryTimeout-elapsed)

	case CircuitHalfOpen:
		if cb.probeCount < cb.config.HalfOpenMaxProbes {
			cb.probeCount++
			return nil
		}
		return fmt.Errorf("%w for %s: max probes (%d) reached", ErrCircuitOpen, cb.target, cb.config.HalfOpenMaxProbes)
	}
	return fmt.Errorf("unknown circuit breaker state: %d", cb.state)
}

// RecordSuccess 记录成功
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThresholdInHalfOpen {
			cb.transitionTo(CircuitClosed, fmt.Sprintf("%d consecutive successes in half-open", cb.successes))
			cb.failures = 0
			cb.successes = 0
		}
	}
}

// RecordFailure 记录失败
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = cb.clock()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen, fmt.Sprintf("%d consecutive failures", cb.failures))
		}
	case CircuitHalfOpen:
		// 半开状态下任何失败都重新熔断
		cb.successes = 0
		cb.transitionTo(CircuitOpen, "failure in half-open state")
	}
}

// State 获取当前状态
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// transitionTo 状态转换（必须在锁内调用）
func (cb *CircuitBreaker) transitionTo(newState CircuitState, reason string) {
	oldState := cb.state
	cb.state = newState
	cb.logger.Info("circuit breaker state change",
		zap.String("old_state", oldState.String()),
		zap.String("new_state", newState.String()),
		zap.String("reason", reason),
		zap.Int("failures", cb.failures))
}

// CircuitBreakerRegistry 按调用目标管理熔断器
type CircuitBreakerRegistry struct {
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewCircuitBreakerRegistry 创建熔断器注册表
func NewCircuitBreakerRegistry(config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreakerRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		logger:   logger,
	}
}

// Get returns the breaker for target, creating it on first use.
func (r *CircuitBreakerRegistry) Get(target string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[target]
	if !ok {
		cb = NewCircuitBreaker(target, r.config, r.logger)
		r.breakers[target] = cb
	}
	return cb
}
