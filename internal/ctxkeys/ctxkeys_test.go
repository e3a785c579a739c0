package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	ctx := context.Background()
	_, ok := RunID(ctx)
	assert.False(t, ok)

	ctx = WithRunID(ctx, "run-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithSessionID(ctx, "")

	run, ok := RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-1", run)

	trace, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-1", trace)

	_, ok = SessionID(ctx)
	assert.False(t, ok, "empty values read as absent")
}
