package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Hydration error codes. A workflow that fails with one of these never runs.
const (
	ErrStructural ErrorCode = "STRUCTURAL"
	ErrCycle      ErrorCode = "CYCLE"
)

// Sandbox error codes
const (
	ErrSandboxViolation  ErrorCode = "SANDBOX_VIOLATION"
	ErrUnboundReference  ErrorCode = "UNBOUND_REFERENCE"
	ErrExpressionInvalid ErrorCode = "EXPRESSION_INVALID"
)

// Execution error codes
const (
	ErrExecution    ErrorCode = "EXECUTION"
	ErrInvalidRoute ErrorCode = "INVALID_ROUTE"
	ErrCancelled    ErrorCode = "CANCELLED"
)

// Session persistence error codes
const (
	ErrStateStore ErrorCode = "STATE_STORE"
)

// Error represents a structured error with code, unit and cause.
type Error struct {
	Code      ErrorCode `json:"code"`
	Unit      string    `json:"unit,omitempty"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Unit != "" {
		prefix = fmt.Sprintf("[%s] unit %q", e.Code, e.Unit)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithUnit records the unit the error belongs to.
func (e *Error) WithUnit(unit string) *Error {
	e.Unit = unit
	return e
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// NewStructuralError 创建水合期结构错误（未知引用、重名、字段非法）。
func NewStructuralError(unit, message string) *Error {
	return NewError(ErrStructural, message).WithUnit(unit)
}

// NewExecutionError 包装外部协作者调用失败。
func NewExecutionError(unit string, cause error) *Error {
	return NewError(ErrExecution, "execution failed").WithUnit(unit).WithCause(cause)
}

// NewSandboxError 包装沙箱拒绝或求值失败。
func NewSandboxError(code ErrorCode, unit string, cause error) *Error {
	return NewError(code, "expression rejected").WithUnit(unit).WithCause(cause)
}

// AsError extracts the first *Error in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether any *Error in the chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// UnitOf returns the innermost unit name recorded in the chain.
func UnitOf(err error) string {
	unit := ""
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		if e.Unit != "" {
			unit = e.Unit
		}
		err = e.Cause
	}
	return unit
}
