// Package ctxkeys 定义运行期写入 context 的键。函数、工具与模型客户端
// 可以据此把日志和外部调用关联到一次工作流运行。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	runIDKey     contextKey = "run_id"
	sessionIDKey contextKey = "session_id"
)

func with(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func get(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) { return get(ctx, traceIDKey) }

// WithRunID 设置 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return with(ctx, runIDKey, runID)
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) { return get(ctx, runIDKey) }

// WithSessionID 设置会话 ID
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return with(ctx, sessionIDKey, sessionID)
}

// SessionID 获取会话 ID
func SessionID(ctx context.Context) (string, bool) { return get(ctx, sessionIDKey) }
