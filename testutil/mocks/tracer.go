// =============================================================================
// 🔭 RecordingTracer - 追踪器模拟实现
// =============================================================================
// 记录全部会话、回合与路由事件，支持错误与 panic 注入
//
// 使用方法:
//
//	tracer := mocks.NewRecordingTracer().WithStepError(errors.New("collector down"))
//	engine, _ := workflow.NewEngine(registry, cfg, workflow.WithTracer(tracer))
//
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
	"github.com/BaSui01/agentrelay/workflow"
)

// SessionEnd 记录一次会话结束事件
type SessionEnd struct {
	ThreadID  string
	Status    agent.Status
	Artifacts map[string]any
}

// RecordingTracer 记录追踪事件
type RecordingTracer struct {
	mu sync.Mutex

	starts     []string
	steps      []workflow.StepTrace
	routes     []workflow.RouteDecision
	ends       []SessionEnd
	sideErrors map[types.ErrorCode]int

	// 错误注入
	startErr  error
	stepErr   error
	endErr    error
	stepPanic any
}

// NewRecordingTracer 创建新的 RecordingTracer
func NewRecordingTracer() *RecordingTracer {
	return &RecordingTracer{sideErrors: make(map[types.ErrorCode]int)}
}

// WithStartError 设置 OnSessionStart 的错误
func (r *RecordingTracer) WithStartError(err error) *RecordingTracer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = err
	return r
}

// WithStepError 设置 OnStep 的错误
func (r *RecordingTracer) WithStepError(err error) *RecordingTracer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepErr = err
	return r
}

// WithEndError 设置 OnSessionEnd 的错误
func (r *RecordingTracer) WithEndError(err error) *RecordingTracer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endErr = err
	return r
}

// WithStepPanic 让 OnStep panic
func (r *RecordingTracer) WithStepPanic(v any) *RecordingTracer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepPanic = v
	return r
}

func (r *RecordingTracer) OnSessionStart(_ context.Context, threadID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, threadID)
	return r.startErr
}

func (r *RecordingTracer) OnStep(_ context.Context, s workflow.StepTrace) error {
	r.mu.Lock()
	r.steps = append(r.steps, s)
	err, p := r.stepErr, r.stepPanic
	r.mu.Unlock()
	if p != nil {
		panic(p)
	}
	return err
}

func (r *RecordingTracer) OnSessionEnd(_ context.Context, threadID string, status agent.Status, artifacts map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, SessionEnd{ThreadID: threadID, Status: status, Artifacts: artifacts})
	return r.endErr
}

func (r *RecordingTracer) OnRoute(_ context.Context, _ string, d workflow.RouteDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, d)
}

func (r *RecordingTracer) OnSideChannelError(_ context.Context, code types.ErrorCode, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sideErrors[code]++
}

// Starts 返回已开始会话的 thread id
func (r *RecordingTracer) Starts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.starts...)
}

// Steps 返回回合记录
func (r *RecordingTracer) Steps() []workflow.StepTrace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]workflow.StepTrace(nil), r.steps...)
}

// StepAgents 返回回合执行的 Agent 名称序列
func (r *RecordingTracer) StepAgents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.steps))
	for i, s := range r.steps {
		out[i] = s.Agent
	}
	return out
}

// Routes 返回路由决策记录
func (r *RecordingTracer) Routes() []workflow.RouteDecision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]workflow.RouteDecision(nil), r.routes...)
}

// Ends 返回会话结束记录
func (r *RecordingTracer) Ends() []SessionEnd {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SessionEnd(nil), r.ends...)
}

// SideErrors 返回按错误码统计的旁路错误次数
func (r *RecordingTracer) SideErrors(code types.ErrorCode) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sideErrors[code]
}

var (
	_ workflow.Tracer              = (*RecordingTracer)(nil)
	_ workflow.RouteObserver       = (*RecordingTracer)(nil)
	_ workflow.SideChannelObserver = (*RecordingTracer)(nil)
)
