package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentpipe/types"
	"github.com/BaSui01/agentpipe/workflow"
)

func TestEngineConfig_EngineOptions(t *testing.T) {
	e := DefaultEngineConfig()
	e.MaxConcurrency = 3

	opts, err := e.EngineOptions()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, opts.Location)
	assert.Equal(t, 3, opts.MaxConcurrency)
	assert.NotNil(t, opts.History)

	e.HistoryCapacity = 0
	e.Timezone = ""
	opts, err = e.EngineOptions()
	require.NoError(t, err)
	assert.Nil(t, opts.History)
	assert.Equal(t, time.UTC, opts.Location)

	e.Timezone = "Mars/Olympus"
	_, err = e.EngineOptions()
	assert.Error(t, err)
}

func TestEngineConfig_HydratorOptions(t *testing.T) {
	e := EngineConfig{StrictOutputKeys: true, DefaultMaxIterations: 7}
	opts := e.HydratorOptions()
	assert.True(t, opts.StrictOutputKeys)
	assert.Equal(t, 7, opts.DefaultMaxIterations)
}

func TestCallsConfig_Middleware(t *testing.T) {
	assert.Empty(t, CallsConfig{}.Middleware(nil), "zero config enables nothing")
	assert.Len(t, DefaultCallsConfig().Middleware(nil), 3)

	all := DefaultCallsConfig()
	all.RateLimitRPS = 100
	assert.Len(t, all.Middleware(nil), 4)
}

func TestCallsConfig_MiddlewareRetriesTransientFailures(t *testing.T) {
	cfg := CallsConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Timeout: time.Second}

	attempts := 0
	var call workflow.CallFunc = func(context.Context, workflow.Call) (any, error) {
		attempts++
		if attempts == 1 {
			return nil, types.NewError(types.ErrExecution, "503").WithRetryable(true)
		}
		return "ok", nil
	}
	mws := cfg.Middleware(nil)
	for i := len(mws) - 1; i >= 0; i-- {
		call = mws[i](call)
	}

	out, err := call(context.Background(), workflow.Call{Kind: workflow.CallModel, Target: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, attempts)
}
