package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/BaSui01/agentpipe/workflow"
)

// Snapshot 一个会话的状态快照
type Snapshot = map[string]any

// ErrNotFound 会话不存在。与 workflow.ErrSessionNotFound 相同，
// 编排器据此把缺失的会话视为空状态。
var ErrNotFound = workflow.ErrSessionNotFound

// ErrClosed 存储已关闭
var ErrClosed = errors.New("session store is closed")

// Store 会话快照存储
type Store interface {
	Load(ctx context.Context, id string) (Snapshot, error)
	Save(ctx context.Context, id string, snapshot Snapshot) error
	Delete(ctx context.Context, id string) error
	Close() error
}

var _ workflow.SessionStore = Store(nil)

func checkID(id string) error {
	if id == "" {
		return errors.New("session id must not be empty")
	}
	return nil
}

// encodeSnapshot 编码快照
func encodeSnapshot(s Snapshot) ([]byte, error) {
	if s == nil {
		s = Snapshot{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// decodeSnapshot 解码快照，数字还原为 int64 或 float64
func decodeSnapshot(data []byte) (Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var s Snapshot
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s == nil {
		s = Snapshot{}
	}
	for k, v := range s {
		s[k] = normalize(v)
	}
	return s, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
		return x
	}
	return v
}

// =============================================================================
// 内存存储
// =============================================================================

// MemoryStore 进程内会话存储。保存时编码，加载时解码，
// 调用方修改返回的快照不会影响已保存的数据。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	closed   bool
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

func (m *MemoryStore) Load(ctx context.Context, id string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	data, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeSnapshot(data)
}

func (m *MemoryStore) Save(ctx context.Context, id string, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.sessions[id] = data
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.sessions, id)
	return nil
}

// Len 返回保存的会话数量
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sessions = nil
	return nil
}
