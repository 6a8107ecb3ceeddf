package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey  contextKey = "trace_id"
	threadIDKey contextKey = "thread_id"
	agentKey    contextKey = "agent"
	stepKey     contextKey = "step"
)

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithThreadID 设置会话线程 ID
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadIDKey, threadID)
}

// ThreadID 获取会话线程 ID
func ThreadID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(threadIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithAgent 设置当前执行的 Agent 名称
func WithAgent(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentKey, name)
}

// Agent 获取当前执行的 Agent 名称
func Agent(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(agentKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithStep 设置当前回合序号
func WithStep(ctx context.Context, step int) context.Context {
	return context.WithValue(ctx, stepKey, step)
}

// Step 获取当前回合序号
func Step(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(stepKey).(int)
	return v, ok
}
