package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/internal/tlsutil"
)

// =============================================================================
// MongoDB 存储
// =============================================================================

// MongoConfig MongoDB 会话存储配置
type MongoConfig struct {
	// 连接 URI
	URI string `yaml:"uri" json:"uri" env:"URI"`
	// 数据库名
	Database string `yaml:"database" json:"database" env:"DATABASE"`
	// 集合名
	Collection string `yaml:"collection" json:"collection" env:"COLLECTION"`
	// 连接超时
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" env:"CONNECT_TIMEOUT"`
	// 启用 TLS
	TLS bool `yaml:"tls" json:"tls" env:"TLS"`
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "agentpipe",
		Collection:     "sessions",
		ConnectTimeout: 10 * time.Second,
	}
}

// mongoSession 会话文档。状态以 JSON 字符串保存，与其他后端的值类型保持一致。
type mongoSession struct {
	ID        string    `bson:"_id"`
	State     string    `bson:"state"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore 基于 MongoDB 的会话存储
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
	clock      func() time.Time
	mu         sync.RWMutex
	closed     bool
}

// NewMongoStore 连接 MongoDB 并检查连接
func NewMongoStore(ctx context.Context, config MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Database == "" || config.Collection == "" {
		return nil, errors.New("mongo database and collection must be set")
	}

	opts := options.Client().ApplyURI(config.URI)
	if config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(config.ConnectTimeout)
	}
	if config.TLS {
		opts.SetTLSConfig(tlsutil.DefaultTLSConfig())
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("mongo session store initialized",
		zap.String("database", config.Database),
		zap.String("collection", config.Collection),
	)
	return &MongoStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		logger:     logger.With(zap.String("component", "session_mongo")),
		clock:      time.Now,
	}, nil
}

func (m *MongoStore) Load(ctx context.Context, id string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	var doc mongoSession
	err := m.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", id, err)
	}
	return decodeSnapshot([]byte(doc.State))
}

func (m *MongoStore) Save(ctx context.Context, id string, snapshot Snapshot) error {
	if err := checkID(id); err != nil {
		return err
	}
	doc, err := m.document(id, snapshot)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	_, err = m.collection.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		m.logger.Error("session save failed", zap.String("session_id", id), zap.Error(err))
		return fmt.Errorf("save session %q: %w", id, err)
	}
	return nil
}

func (m *MongoStore) document(id string, snapshot Snapshot) (mongoSession, error) {
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return mongoSession{}, err
	}
	return mongoSession{ID: id, State: string(data), UpdatedAt: m.clock().UTC()}, nil
}

func (m *MongoStore) Delete(ctx context.Context, id string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	if _, err := m.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	return nil
}

// Close 断开连接
func (m *MongoStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing mongo session store")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
