package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// SQL 存储
// =============================================================================

// SQLConfig SQL 会话存储配置
type SQLConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" json:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" json:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" json:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" json:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
	// 数据库名；sqlite 为文件路径
	Name string `yaml:"name" json:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" json:"ssl_mode" env:"SSL_MODE"`

	// 最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 连接最大空闲时间
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`

	// 保存失败（死锁、序列化冲突）时的最大尝试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
	// 启动时自动建表
	AutoMigrate bool `yaml:"auto_migrate" json:"auto_migrate" env:"AUTO_MIGRATE"`
}

// DefaultSQLConfig 返回默认 SQL 配置
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		Driver:          "sqlite",
		Name:            "agentpipe-sessions.db",
		SSLMode:         "disable",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		MaxRetries:      3,
		AutoMigrate:     true,
	}
}

// DSN 返回数据库连接字符串
func (c SQLConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Name,
		)
	case "sqlite":
		return c.Name
	default:
		return ""
	}
}

// Dialector 按驱动类型返回 GORM 方言
func (c SQLConfig) Dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case "postgres":
		return postgres.Open(c.DSN()), nil
	case "mysql":
		return mysql.Open(c.DSN()), nil
	case "sqlite":
		return sqlite.Open(c.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", c.Driver)
	}
}

// sessionRecord 会话表记录
type sessionRecord struct {
	ID        string    `gorm:"primaryKey;size:191"`
	State     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (sessionRecord) TableName() string { return "agentpipe_sessions" }

// SQLStore 基于 GORM 的会话存储
type SQLStore struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config SQLConfig
	logger *zap.Logger
	clock  func() time.Time
	mu     sync.RWMutex
	closed bool
}

// OpenSQLStore 按配置打开数据库并创建存储
func OpenSQLStore(config SQLConfig, logger *zap.Logger) (*SQLStore, error) {
	dialector, err := config.Dialector()
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", config.Driver, err)
	}
	return NewSQLStore(db, config, logger)
}

// NewSQLStore 在已有连接上创建存储，并配置连接池
func NewSQLStore(db *gorm.DB, config SQLConfig, logger *zap.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}

	if config.AutoMigrate {
		if err := db.AutoMigrate(&sessionRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate session table: %w", err)
		}
	}

	logger.Info("sql session store initialized",
		zap.String("driver", config.Driver),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Bool("auto_migrate", config.AutoMigrate),
	)
	return &SQLStore{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "session_sql")),
		clock:  time.Now,
	}, nil
}

func (s *SQLStore) Load(ctx context.Context, id string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var rec sessionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", id, err)
	}
	return decodeSnapshot([]byte(rec.State))
}

// Save 以 upsert 方式保存快照，遇到死锁或序列化冲突时带退避重试
func (s *SQLStore) Save(ctx context.Context, id string, snapshot Snapshot) error {
	if err := checkID(id); err != nil {
		return err
	}
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	rec := sessionRecord{ID: id, State: string(data), UpdatedAt: s.clock().UTC()}

	return s.withTransactionRetry(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
		}).Create(&rec).Error
	})
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&sessionRecord{}).Error; err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	return nil
}

// Ping 检查数据库连接
func (s *SQLStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.sqlDB.PingContext(ctx)
}

// Stats 返回连接池统计信息
func (s *SQLStore) Stats() sql.DBStats {
	return s.sqlDB.Stats()
}

// Close 关闭连接池
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing sql session store")
	return s.sqlDB.Close()
}

// =============================================================================
// 事务重试
// =============================================================================

func (s *SQLStore) withTransactionRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for i := 0; i < s.config.MaxRetries; i++ {
		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			return ErrClosed
		}
		err := s.db.WithContext(ctx).Transaction(fn)
		s.mu.RUnlock()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return err
		}
		s.logger.Warn("session transaction failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", s.config.MaxRetries),
			zap.Error(err),
		)

		// 指数退避
		backoff := time.Duration(1<<uint(i)) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", s.config.MaxRetries, lastErr)
}

// isRetryableError 判断错误是否可重试
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"deadlock",
		"serialization failure", "40001", // PostgreSQL SQLSTATE 40001
		"connection reset", "connection refused", "broken pipe", "bad connection",
		"lock timeout", "lock wait timeout",
		"database is locked", // sqlite
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
