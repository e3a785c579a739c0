package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/internal/tlsutil"
)

// =============================================================================
// Redis 存储
// =============================================================================

// RedisConfig Redis 会话存储配置
type RedisConfig struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`

	// 密码
	Password string `yaml:"password" json:"password" env:"PASSWORD"`

	// 数据库编号
	DB int `yaml:"db" json:"db" env:"DB"`

	// 键前缀
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`

	// 会话过期时间，0 表示不过期
	TTL time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns" env:"MIN_IDLE_CONNS"`

	// 启用 TLS
	TLS bool `yaml:"tls" json:"tls" env:"TLS"`
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		KeyPrefix:    "agentpipe:session:",
		TTL:          24 * time.Hour,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisStore 基于 Redis 的会话存储
type RedisStore struct {
	client *redis.Client
	config RedisConfig
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewRedisStore 创建 Redis 存储并检查连接
func NewRedisStore(ctx context.Context, config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	}
	if config.TLS {
		opts.TLSConfig = tlsutil.ClientConfig(config.Addr)
	}
	client := redis.NewClient(opts)

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis session store initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
		zap.Bool("tls", config.TLS),
	)
	return &RedisStore{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "session_redis")),
	}, nil
}

func (r *RedisStore) key(id string) string {
	return r.config.KeyPrefix + id
}

func (r *RedisStore) Load(ctx context.Context, id string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}

	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("session load failed", zap.String("session_id", id), zap.Error(err))
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeSnapshot(data)
}

func (r *RedisStore) Save(ctx context.Context, id string, snapshot Snapshot) error {
	if err := checkID(id); err != nil {
		return err
	}
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	if err := r.client.Set(ctx, r.key(id), data, r.config.TTL).Err(); err != nil {
		r.logger.Error("session save failed", zap.String("session_id", id), zap.Error(err))
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连接
func (r *RedisStore) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return r.client.Ping(ctx).Err()
}

// Close 关闭存储
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.logger.Info("closing redis session store")
	return r.client.Close()
}
