package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Backend 会话存储后端
type Backend string

const (
	BackendNone   Backend = "none"
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendRedis  Backend = "redis"
	BackendSQL    Backend = "sql"
	BackendMongo  Backend = "mongo"
)

// Config 会话存储配置
type Config struct {
	// 后端: none, memory, file, redis, sql, mongo
	Backend Backend `yaml:"backend" json:"backend" env:"BACKEND"`
	// file 后端的目录
	Dir string `yaml:"dir" json:"dir" env:"DIR"`

	Redis RedisConfig `yaml:"redis" json:"redis" env:"REDIS"`
	SQL   SQLConfig   `yaml:"sql" json:"sql" env:"SQL"`
	Mongo MongoConfig `yaml:"mongo" json:"mongo" env:"MONGO"`
}

// DefaultConfig 返回默认配置（不持久化会话）
func DefaultConfig() Config {
	return Config{
		Backend: BackendNone,
		Dir:     ".agentpipe/sessions",
		Redis:   DefaultRedisConfig(),
		SQL:     DefaultSQLConfig(),
		Mongo:   DefaultMongoConfig(),
	}
}

// Validate 检查后端名称
func (c Config) Validate() error {
	switch c.Backend {
	case "", BackendNone, BackendMemory, BackendRedis, BackendMongo:
		return nil
	case BackendFile:
		if c.Dir == "" {
			return fmt.Errorf("session.dir is required for the file backend")
		}
		return nil
	case BackendSQL:
		_, err := c.SQL.Dialector()
		return err
	default:
		return fmt.Errorf("unknown session backend %q", c.Backend)
	}
}

// Open 按配置创建存储。none 或空后端返回 nil，表示不持久化会话。
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		store = NewMemoryStore()
	case BackendFile:
		store, err = asStore(NewFileStore(cfg.Dir, logger))
	case BackendRedis:
		store, err = asStore(NewRedisStore(ctx, cfg.Redis, logger))
	case BackendSQL:
		store, err = asStore(OpenSQLStore(cfg.SQL, logger))
	case BackendMongo:
		store, err = asStore(NewMongoStore(ctx, cfg.Mongo, logger))
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("session store opened", zap.String("backend", string(cfg.Backend)))
	return store, nil
}

// asStore 避免把带类型的 nil 指针装进接口
func asStore[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
