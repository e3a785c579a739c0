// =============================================================================
// 💾 MockSessionStore - 会话存储模拟实现
// =============================================================================
// 实现 workflow.SessionStore，支持预置快照、错误注入与调用计数
//
// 使用方法:
//
//	store := mocks.NewMockSessionStore().WithSnapshot("s1", map[string]any{"count": 2})
//	orch := workflow.NewOrchestrator(nil, workflow.EngineOptions{Sessions: store}, nil)
//
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentpipe/workflow"
)

// MockSessionStore 是 workflow.SessionStore 的模拟实现
type MockSessionStore struct {
	mu sync.RWMutex

	snapshots map[string]map[string]any

	// 错误注入
	loadErr error
	saveErr error

	// 调用记录
	loadCalls int
	saveCalls int
}

var _ workflow.SessionStore = (*MockSessionStore)(nil)

// NewMockSessionStore 创建空的 MockSessionStore
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{snapshots: make(map[string]map[string]any)}
}

// WithSnapshot 预置会话快照
func (m *MockSessionStore) WithSnapshot(id string, snap map[string]any) *MockSessionStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[id] = copyArgs(snap)
	return m
}

// WithLoadError 设置 Load 的错误
func (m *MockSessionStore) WithLoadError(err error) *MockSessionStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
	return m
}

// WithSaveError 设置 Save 的错误
func (m *MockSessionStore) WithSaveError(err error) *MockSessionStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// Load 返回快照副本，未知会话返回 workflow.ErrSessionNotFound
func (m *MockSessionStore) Load(_ context.Context, id string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	snap, ok := m.snapshots[id]
	if !ok {
		return nil, workflow.ErrSessionNotFound
	}
	return copyArgs(snap), nil
}

// Save 保存快照副本
func (m *MockSessionStore) Save(_ context.Context, id string, snap map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snapshots[id] = copyArgs(snap)
	return nil
}

// Snapshot 返回已保存的快照
func (m *MockSessionStore) Snapshot(id string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[id]
	return copyArgs(snap), ok
}

// LoadCalls 返回 Load 调用次数
func (m *MockSessionStore) LoadCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadCalls
}

// SaveCalls 返回 Save 调用次数
func (m *MockSessionStore) SaveCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveCalls
}
