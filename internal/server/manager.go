package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/internal/tlsutil"
)

// =============================================================================
// 🌐 指标 HTTP 服务器管理器
// =============================================================================

// Manager 管理一个后台 HTTP(S) 服务器的生命周期
type Manager struct {
	server   *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// Config 服务器配置
type Config struct {
	// 监听地址，":0" 表示随机端口
	Addr string `yaml:"addr" json:"addr"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 最大请求头大小
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// 证书与私钥同时设置时启用 TLS
	TLSCertFile string `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file" json:"tls_key_file"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":9091",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 5 * time.Second,
	}
}

// MetricsHandler 在 path 上暴露 gatherer 的指标，并提供 /healthz
func MetricsHandler(gatherer prometheus.Gatherer, path string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(logger),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		server: &http.Server{
			Addr:           config.Addr,
			Handler:        handler,
			ReadTimeout:    config.ReadTimeout,
			WriteTimeout:   config.WriteTimeout,
			IdleTimeout:    config.IdleTimeout,
			MaxHeaderBytes: config.MaxHeaderBytes,
		},
		errCh:  make(chan error, 1),
		config: config,
		logger: logger.With(zap.String("component", "metrics_server")),
	}
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Start 启动服务器（非阻塞）。配置了证书时以 TLS 监听。
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("server is closed")
	}
	if m.listener != nil {
		return errors.New("server already started")
	}

	var tlsCfg *tls.Config
	if m.config.TLSCertFile != "" || m.config.TLSKeyFile != "" {
		cfg, err := tlsutil.ServerConfig(m.config.TLSCertFile, m.config.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("load tls config: %w", err)
		}
		tlsCfg = cfg
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	if tlsCfg != nil {
		listener = tls.NewListener(listener, tlsCfg)
	}
	m.listener = listener

	m.logger.Info("starting metrics server",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("tls", tlsCfg != nil),
	)

	go m.serve(listener)
	return nil
}

func (m *Manager) serve(listener net.Listener) {
	if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("metrics server failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}
}

// Shutdown 优雅关闭服务器，重复调用无副作用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.listener == nil {
		return nil
	}

	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}

	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Error("metrics server shutdown failed", zap.Error(err))
		return err
	}
	m.listener = nil
	m.logger.Info("metrics server stopped")
	return nil
}

// Errors 返回异步服务错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// =============================================================================
// 🔧 辅助方法
// =============================================================================

// Addr 返回实际监听地址；未启动时返回配置地址
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

// IsRunning 检查服务器是否运行中
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed && m.listener != nil
}
