package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startMetrics(t *testing.T, reg *prometheus.Registry) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager(MetricsHandler(reg, "/metrics", zap.NewNop()), cfg, zap.NewNop())
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":9091", cfg.Addr)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.TLSCertFile)
}

func TestManager_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	runs := prometheus.NewCounter(prometheus.CounterOpts{Name: "agentpipe_test_runs_total", Help: "runs"})
	reg.MustRegister(runs)
	runs.Add(3)

	m := startMetrics(t, reg)
	assert.True(t, m.IsRunning())

	code, body := get(t, "http://"+m.Addr()+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "agentpipe_test_runs_total 3")

	code, body = get(t, "http://"+m.Addr()+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_DoubleStart(t *testing.T) {
	m := startMetrics(t, prometheus.NewRegistry())

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m := startMetrics(t, prometheus.NewRegistry())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	m := NewManager(http.NewServeMux(), DefaultConfig(), nil)
	assert.False(t, m.IsRunning())
	assert.Equal(t, ":9091", m.Addr())
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_TLSMissingFiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.TLSCertFile = "/nonexistent/cert.pem"
	cfg.TLSKeyFile = "/nonexistent/key.pem"
	m := NewManager(http.NewServeMux(), cfg, zap.NewNop())

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls")
	assert.False(t, m.IsRunning())
}

func TestManager_Errors(t *testing.T) {
	m := startMetrics(t, prometheus.NewRegistry())
	select {
	case err := <-m.Errors():
		t.Fatalf("unexpected server error: %v", err)
	default:
	}
}
