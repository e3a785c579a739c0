package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors. Concrete error types unwrap to one of these.
var (
	ErrSandboxViolation = errors.New("sandbox violation")
	ErrUnboundReference = errors.New("unbound reference")
	ErrSyntax           = errors.New("syntax error")
	ErrEvaluation       = errors.New("evaluation error")
)

// Violation is returned when an expression uses a construct the sandbox
// forbids. It is always raised before evaluation starts.
type Violation struct {
	Construct string // import, lambda, call, attribute, name, subscript
	Detail    string
	Pos       int
}

func (v *Violation) Error() string {
	return fmt.Sprintf("sandbox violation at %d: %s: %s", v.Pos, v.Construct, v.Detail)
}

func (v *Violation) Unwrap() error { return ErrSandboxViolation }

// UnboundError reports a name that is neither a literal nor present in bindings.
type UnboundError struct {
	Name string
	Pos  int
}

func (e *UnboundError) Error() string {
	return fmt.Sprintf("unbound reference %q at %d", e.Name, e.Pos)
}

func (e *UnboundError) Unwrap() error { return ErrUnboundReference }

// SyntaxError reports malformed expression text.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// EvalError reports a runtime failure such as a type mismatch or division by zero.
type EvalError struct {
	Pos int
	Msg string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation error at %d: %s", e.Pos, e.Msg)
}

func (e *EvalError) Unwrap() error { return ErrEvaluation }

func evalErrorf(pos int, format string, args ...any) error {
	return &EvalError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func syntaxErrorf(pos int, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
