package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentpipe/types"
)

// CallKind distinguishes the collaborator behind a call.
type CallKind string

const (
	CallModel    CallKind = "model"
	CallTool     CallKind = "tool"
	CallFunction CallKind = "function"
)

// Call describes one external collaborator call.
type Call struct {
	Kind   CallKind
	Unit   string
	Target string // model name, tool name or capability name
}

// CallFunc performs a call.
type CallFunc func(ctx context.Context, call Call) (any, error)

// CallMiddleware wraps external calls. The engine itself never retries or
// times out a call; those policies live here.
type CallMiddleware func(next CallFunc) CallFunc

// chainMiddleware applies mws so that mws[0] is the outermost wrapper.
func chainMiddleware(mws []CallMiddleware, final CallFunc) CallFunc {
	h := final
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// =============================================================================
// Retry
// =============================================================================

// RetryConfig defines retry behavior for collaborator calls
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// InitialBackoff is the initial backoff duration (default: 500ms)
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration (default: 10s)
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff (default: 2.0)
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier"`

	// RetryAll retries every failure instead of only types.Error values marked retryable.
	RetryAll bool `json:"retry_all" yaml:"retry_all"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// CalculateBackoff calculates the backoff duration for a given retry attempt
func (c RetryConfig) CalculateBackoff(attempt int) time.Duration {
	backoff := c.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * c.BackoffMultiplier)
		if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return backoff
}

// RetryMiddleware retries failed calls with exponential backoff.
func RetryMiddleware(cfg RetryConfig, logger *zap.Logger) CallMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "retry_plugin"))
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, call Call) (any, error) {
			var lastErr error
			for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
				if attempt > 0 {
					wait := cfg.CalculateBackoff(attempt - 1)
					logger.Debug("retrying call",
						zap.String("unit", call.Unit),
						zap.String("target", call.Target),
						zap.Int("attempt", attempt),
						zap.Duration("backoff", wait))
					timer := time.NewTimer(wait)
					select {
					case <-ctx.Done():
						timer.Stop()
						return nil, ctx.Err()
					case <-timer.C:
					}
				}
				out, err := next(ctx, call)
				if err == nil {
					return out, nil
				}
				lastErr = err
				if !cfg.RetryAll && !types.IsRetryable(err) {
					return nil, err
				}
			}
			return nil, fmt.Errorf("%s %q failed after %d retries: %w", call.Kind, call.Target, cfg.MaxRetries, lastErr)
		}
	}
}

// =============================================================================
// Rate limiting, timeout, circuit breaking
// =============================================================================

// RateLimitMiddleware blocks until limiter admits the call.
func RateLimitMiddleware(limiter *rate.Limiter) CallMiddleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, call Call) (any, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, types.NewError(types.ErrExecution, "rate limit wait aborted").
					WithUnit(call.Unit).WithCause(err).WithRetryable(true)
			}
			return next(ctx, call)
		}
	}
}

// TimeoutMiddleware bounds each call by d.
func TimeoutMiddleware(d time.Duration) CallMiddleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, call Call) (any, error) {
			if d <= 0 {
				return next(ctx, call)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			out, err := next(ctx, call)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, types.NewError(types.ErrExecution, fmt.Sprintf("%s %q timed out after %v", call.Kind, call.Target, d)).
					WithUnit(call.Unit).WithCause(err).WithRetryable(true)
			}
			return out, err
		}
	}
}

// CircuitBreakerMiddleware keeps one breaker per call target.
func CircuitBreakerMiddleware(registry *CircuitBreakerRegistry) CallMiddleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, call Call) (any, error) {
			cb := registry.Get(string(call.Kind) + ":" + call.Target)
			if err := cb.Allow(); err != nil {
				return nil, err
			}
			out, err := next(ctx, call)
			if err != nil {
				cb.RecordFailure()
				return nil, err
			}
			cb.RecordSuccess()
			return out, nil
		}
	}
}
