// MockTool 与 MockToolset 的工具测试模拟实现。
//
// 支持固定结果、自定义函数、错误注入与调用记录。
package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/agentpipe/workflow"
)

// ToolFunc 工具执行函数类型
type ToolFunc func(ctx context.Context, tc *workflow.ToolContext, args map[string]any) (any, error)

// ToolCall 记录单次工具调用
type ToolCall struct {
	Tool   string
	Unit   string
	Args   map[string]any
	Result any
	Error  error
}

// --- MockTool ---

// MockTool 是 workflow.Tool 的模拟实现
type MockTool struct {
	mu sync.RWMutex

	name        string
	description string
	result      any
	err         error
	fn          ToolFunc

	calls []ToolCall
}

var _ workflow.Tool = (*MockTool)(nil)

// NewMockTool 创建返回 nil 的 MockTool
func NewMockTool(name string) *MockTool {
	return &MockTool{name: name, description: "mock tool " + name}
}

// WithDescription 设置描述
func (t *MockTool) WithDescription(desc string) *MockTool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.description = desc
	return t
}

// WithResult 设置固定结果
func (t *MockTool) WithResult(result any) *MockTool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = result
	return t
}

// WithError 设置返回错误
func (t *MockTool) WithError(err error) *MockTool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
	return t
}

// WithFunc 设置自定义执行函数，优先于固定结果
func (t *MockTool) WithFunc(fn ToolFunc) *MockTool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fn = fn
	return t
}

func (t *MockTool) Name() string { return t.name }

func (t *MockTool) Description() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.description
}

// Call 执行工具并记录调用
func (t *MockTool) Call(ctx context.Context, tc *workflow.ToolContext, args map[string]any) (any, error) {
	t.mu.RLock()
	fn, result, err := t.fn, t.result, t.err
	t.mu.RUnlock()

	if fn != nil {
		result, err = fn(ctx, tc, args)
	}
	if err != nil {
		result = nil
	}

	call := ToolCall{Tool: t.name, Args: copyArgs(args), Result: result, Error: err}
	if tc != nil {
		call.Unit = tc.Unit()
	}
	t.mu.Lock()
	t.calls = append(t.calls, call)
	t.mu.Unlock()
	return result, err
}

// Calls 返回调用记录
func (t *MockTool) Calls() []ToolCall {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]ToolCall(nil), t.calls...)
}

// CallCount 返回调用次数
func (t *MockTool) CallCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.calls)
}

// --- MockToolset ---

// MockToolset 是 workflow.Toolset 的模拟实现，记录每次查找
type MockToolset struct {
	mu      sync.RWMutex
	tools   map[string]*MockTool
	lookups []string
	down    bool
}

var _ workflow.Toolset = (*MockToolset)(nil)

// NewMockToolset 创建包含 tools 的工具集
func NewMockToolset(tools ...*MockTool) *MockToolset {
	s := &MockToolset{tools: make(map[string]*MockTool, len(tools))}
	for _, t := range tools {
		s.tools[t.Name()] = t
	}
	return s
}

// WithTool 添加工具
func (s *MockToolset) WithTool(t *MockTool) *MockToolset {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[t.Name()] = t
	return s
}

// WithUnavailable 让所有查找失败
func (s *MockToolset) WithUnavailable() *MockToolset {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = true
	return s
}

// Tool 按名称查找工具
func (s *MockToolset) Tool(name string) (workflow.Tool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups = append(s.lookups, name)
	if s.down {
		return nil, false
	}
	t, ok := s.tools[name]
	if !ok {
		return nil, false
	}
	return t, true
}

// Get 返回具体的 MockTool，便于断言
func (s *MockToolset) Get(name string) *MockTool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tools[name]
}

// Names 返回排序后的工具名
func (s *MockToolset) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tools))
	for n := range s.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookups 返回查找记录
func (s *MockToolset) Lookups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.lookups...)
}

func copyArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
