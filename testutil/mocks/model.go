// =============================================================================
// 🤖 MockModel - ModelClient 模拟实现
// =============================================================================
// 支持按单元设置固定输出、工具调用脚本、延迟与错误注入
//
// 使用方法:
//
//	model := mocks.NewMockModel().
//	    WithOutput("writer", "draft").
//	    WithToolCall("critic", "exit_loop", nil)
//	orch := workflow.NewOrchestrator(model, workflow.EngineOptions{}, nil)
//
// =============================================================================
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/agentpipe/workflow"
)

// ScriptedToolCall 是模型在生成前代为执行的一次工具调用
type ScriptedToolCall struct {
	Name string
	Args map[string]any
}

// MockModel 是 workflow.ModelClient 的模拟实现
type MockModel struct {
	mu sync.RWMutex

	// 响应配置
	defaultOutput any
	outputs       map[string]any
	toolCalls     map[string][]ScriptedToolCall
	err           error
	unitErrs      map[string]error
	generateFunc  func(ctx context.Context, req *workflow.ModelRequest) (*workflow.ModelResponse, error)

	// 行为控制
	delay     time.Duration
	failAfter int
	callCount int

	// 调用记录
	calls []MockModelCall
}

// MockModelCall 记录单次调用
type MockModelCall struct {
	Request     workflow.ModelRequest
	ToolResults []any
	Response    *workflow.ModelResponse
	Error       error
}

var _ workflow.ModelClient = (*MockModel)(nil)

// --- 构造函数和 Builder 方法 ---

// NewMockModel 创建新的 MockModel，默认输出 "Mock response"
func NewMockModel() *MockModel {
	return &MockModel{
		defaultOutput: "Mock response",
		outputs:       make(map[string]any),
		toolCalls:     make(map[string][]ScriptedToolCall),
		unitErrs:      make(map[string]error),
	}
}

// WithResponse 设置所有单元的默认输出
func (m *MockModel) WithResponse(output any) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultOutput = output
	return m
}

// WithOutput 设置指定单元的输出
func (m *MockModel) WithOutput(unit string, output any) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[unit] = output
	return m
}

// WithRoute 让路由单元选择 candidate
func (m *MockModel) WithRoute(router, candidate string) *MockModel {
	return m.WithOutput(router, map[string]any{"route": candidate})
}

// WithToolCall 让指定单元在返回前调用一个工具
func (m *MockModel) WithToolCall(unit, tool string, args map[string]any) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls[unit] = append(m.toolCalls[unit], ScriptedToolCall{Name: tool, Args: args})
	return m
}

// WithError 设置所有调用返回的错误
func (m *MockModel) WithError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithUnitError 设置指定单元返回的错误
func (m *MockModel) WithUnitError(unit string, err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unitErrs[unit] = err
	return m
}

// WithDelay 设置响应延迟，延迟期间响应 ctx 取消
func (m *MockModel) WithDelay(d time.Duration) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockModel) WithFailAfter(n int) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithGenerateFunc 设置自定义 Generate 函数，优先于其它配置
func (m *MockModel) WithGenerateFunc(fn func(ctx context.Context, req *workflow.ModelRequest) (*workflow.ModelResponse, error)) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateFunc = fn
	return m
}

// --- ModelClient 接口实现 ---

// Generate 按配置生成响应
func (m *MockModel) Generate(ctx context.Context, req *workflow.ModelRequest) (*workflow.ModelResponse, error) {
	m.mu.Lock()
	m.callCount++
	count := m.callCount
	delay := m.delay
	fn := m.generateFunc
	err := m.err
	if unitErr, ok := m.unitErrs[req.Unit]; ok {
		err = unitErr
	}
	if m.failAfter > 0 && count > m.failAfter && err == nil {
		err = fmt.Errorf("mock model: failed after %d calls", m.failAfter)
	}
	output, ok := m.outputs[req.Unit]
	if !ok {
		output = m.defaultOutput
	}
	scripted := append([]ScriptedToolCall(nil), m.toolCalls[req.Unit]...)
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, m.record(req, nil, nil, ctx.Err())
		}
	}

	if fn != nil {
		resp, fnErr := fn(ctx, req)
		return resp, m.record(req, nil, resp, fnErr)
	}
	if err != nil {
		return nil, m.record(req, nil, nil, err)
	}

	var results []any
	for _, call := range scripted {
		if req.CallTool == nil {
			return nil, m.record(req, results, nil, fmt.Errorf("mock model: unit %q has no tools", req.Unit))
		}
		out, callErr := req.CallTool(ctx, call.Name, call.Args)
		if callErr != nil {
			return nil, m.record(req, results, nil, callErr)
		}
		results = append(results, out)
	}

	resp := &workflow.ModelResponse{Output: output, Metadata: map[string]any{"mock": true, "call": count}}
	return resp, m.record(req, results, resp, nil)
}

func (m *MockModel) record(req *workflow.ModelRequest, results []any, resp *workflow.ModelResponse, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockModelCall{Request: *req, ToolResults: results, Response: resp, Error: err})
	return err
}

// --- 调用记录查询 ---

// Calls 返回全部调用记录
func (m *MockModel) Calls() []MockModelCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockModelCall(nil), m.calls...)
}

// CallsFor 返回指定单元的调用记录
func (m *MockModel) CallsFor(unit string) []MockModelCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MockModelCall
	for _, c := range m.calls {
		if c.Request.Unit == unit {
			out = append(out, c)
		}
	}
	return out
}

// CallCount 返回调用次数
func (m *MockModel) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// Reset 清空调用记录
func (m *MockModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
}
