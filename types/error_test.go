package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrExecution, "tool call failed").
		WithUnit("fetch").
		WithCause(root).
		WithRetryable(true)

	assert.Equal(t, ErrExecution, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Equal(t, `[EXECUTION] unit "fetch": tool call failed: root`, err.Error())
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	inner := NewSandboxError(ErrSandboxViolation, "calc", errors.New("dunder attribute"))
	outer := fmt.Errorf("run failed: %w", NewExecutionError("loop", inner))

	assert.Equal(t, ErrExecution, GetErrorCode(outer))
	assert.True(t, IsCode(outer, ErrSandboxViolation))
	assert.False(t, IsCode(outer, ErrCycle))
	assert.Equal(t, "calc", UnitOf(outer))

	e, ok := AsError(outer)
	require.True(t, ok)
	assert.Equal(t, "loop", e.Unit)
}

func TestError_PlainErrors(t *testing.T) {
	t.Parallel()

	plain := errors.New("boom")
	assert.Equal(t, ErrorCode(""), GetErrorCode(plain))
	assert.False(t, IsRetryable(plain))
	assert.Empty(t, UnitOf(plain))
	assert.Equal(t, "[STRUCTURAL]: bad", NewError(ErrStructural, "bad").Error())
}
