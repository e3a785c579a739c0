// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供上下文、流事件收集、工作流水合与断言辅助
//
// 使用方法:
//
//	rec := testutil.NewStreamRecorder()
//	res, err := orch.Run(rec.Context(testutil.TestContext(t)), wf, workflow.RunOptions{})
//	testutil.AssertUnitOrder(t, res.History, "fetch", "combine")
//
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentpipe/workflow"
	"github.com/BaSui01/agentpipe/workflow/dsl"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 📡 流事件收集
// =============================================================================

// StreamRecorder 收集一次运行发出的流事件，可并发写入
type StreamRecorder struct {
	mu     sync.Mutex
	events []workflow.WorkflowStreamEvent
}

// NewStreamRecorder 创建收集器
func NewStreamRecorder() *StreamRecorder {
	return &StreamRecorder{}
}

// Context 返回挂载了收集器的上下文
func (r *StreamRecorder) Context(ctx context.Context) context.Context {
	return workflow.WithWorkflowStreamEmitter(ctx, r.emit)
}

func (r *StreamRecorder) emit(ev workflow.WorkflowStreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events 返回全部事件
func (r *StreamRecorder) Events() []workflow.WorkflowStreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]workflow.WorkflowStreamEvent(nil), r.events...)
}

// OfType 返回指定类型的事件
func (r *StreamRecorder) OfType(typ workflow.WorkflowStreamEventType) []workflow.WorkflowStreamEvent {
	var out []workflow.WorkflowStreamEvent
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Units 返回指定类型事件的单元名，保持发出顺序
func (r *StreamRecorder) Units(typ workflow.WorkflowStreamEventType) []string {
	var out []string
	for _, ev := range r.OfType(typ) {
		out = append(out, ev.Unit)
	}
	return out
}

// =============================================================================
// 🏗️ 工作流辅助
// =============================================================================

// Hydrate 用内置种类和给定解析器水合文档，失败时终止测试。
// 水合器日志写入测试输出。
func Hydrate(t *testing.T, doc string, resolver *workflow.ToolResolver, opts dsl.Options) *workflow.Workflow {
	t.Helper()
	h, err := dsl.NewHydrator(nil, resolver, opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	wf, err := h.HydrateBytes([]byte(doc))
	require.NoError(t, err)
	return wf
}

// AssertUnitOrder 断言运行历史中成功执行的单元顺序
func AssertUnitOrder(t *testing.T, history *workflow.RunHistory, expected ...string) {
	t.Helper()
	require.NotNil(t, history)
	var got []string
	for _, u := range history.GetUnits() {
		if u.Status == workflow.ExecutionStatusCompleted {
			got = append(got, u.Unit)
		}
	}
	assert.Equal(t, expected, got)
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertJSONEqual 断言两个值的 JSON 表示相等
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()
	assert.JSONEq(t, MustJSON(expected), MustJSON(actual))
}

// AssertEventuallyEqual 断言值最终相等
func AssertEventuallyEqual(t *testing.T, expected any, getter func() any, timeout time.Duration) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return reflect.DeepEqual(expected, getter())
	}, timeout, 10*time.Millisecond, "value did not become %v", expected)
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}
