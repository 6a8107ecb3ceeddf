// =============================================================================
// 📦 测试数据工厂 - Agent 测试桩
// =============================================================================
// 提供可预测的 Agent 实现，用于引擎、路由与 API 测试
// =============================================================================
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
)

// =============================================================================
// 🔢 调用计数
// =============================================================================

// Calls 记录每个 Agent 被调用的次数和顺序，可在多个桩之间共享
type Calls struct {
	mu    sync.Mutex
	order []string
}

// NewCalls 创建调用记录
func NewCalls() *Calls { return &Calls{} }

func (c *Calls) record(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.order = append(c.order, name)
	c.mu.Unlock()
}

// Order 返回调用顺序的副本
func (c *Calls) Order() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Count 返回 name 的调用次数
func (c *Calls) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, o := range c.order {
		if o == name {
			n++
		}
	}
	return n
}

// Total 返回全部调用次数
func (c *Calls) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// =============================================================================
// 🤖 StubAgent
// =============================================================================

// TurnFunc 是 StubAgent 每回合执行的逻辑，n 为本 Agent 的第几次调用（从 1 开始）
type TurnFunc func(ctx context.Context, state *agent.WorkflowState, n int) (*agent.WorkflowState, error)

// StubAgent 是可编程的测试 Agent
type StubAgent struct {
	name    string
	targets []string
	fn      TurnFunc
	calls   *Calls

	mu sync.Mutex
	n  int
}

// NewStubAgent 创建测试 Agent
func NewStubAgent(name string, fn TurnFunc, targets ...string) *StubAgent {
	return &StubAgent{name: name, targets: targets, fn: fn}
}

// WithCalls 共享调用记录
func (a *StubAgent) WithCalls(c *Calls) *StubAgent {
	a.calls = c
	return a
}

func (a *StubAgent) Name() string             { return a.name }
func (a *StubAgent) HandoffTargets() []string { return a.targets }

// Invocations 返回本 Agent 被调用的次数
func (a *StubAgent) Invocations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

func (a *StubAgent) Process(ctx context.Context, state *agent.WorkflowState) (*agent.WorkflowState, error) {
	a.mu.Lock()
	a.n++
	n := a.n
	a.mu.Unlock()
	a.calls.record(a.name)
	if a.fn == nil {
		return state, nil
	}
	return a.fn(ctx, state, n)
}

// =============================================================================
// 🎬 预置行为
// =============================================================================

// Say 每回合追加一条固定文本
func Say(name, text string, targets ...string) *StubAgent {
	return NewStubAgent(name, func(_ context.Context, s *agent.WorkflowState, _ int) (*agent.WorkflowState, error) {
		s.AppendMessage(types.NewAssistantMessage(name, text))
		return s, nil
	}, targets...)
}

// Script 按顺序回放 replies，用尽后重复最后一条
func Script(name string, replies []string, targets ...string) *StubAgent {
	return NewStubAgent(name, func(_ context.Context, s *agent.WorkflowState, n int) (*agent.WorkflowState, error) {
		if len(replies) == 0 {
			return s, nil
		}
		i := min(n-1, len(replies)-1)
		s.AppendMessage(types.NewAssistantMessage(name, replies[i]))
		return s, nil
	}, targets...)
}

// TextTransfer 每回合输出 "transfer_to_<target>: <reason>"
func TextTransfer(name, target, reason string) *StubAgent {
	return Say(name, fmt.Sprintf("transfer_to_%s: %s", target, reason), target)
}

// Handoff 每回合设置结构化交接信号
func Handoff(name, target, reason string) *StubAgent {
	return NewStubAgent(name, func(_ context.Context, s *agent.WorkflowState, n int) (*agent.WorkflowState, error) {
		s.AppendMessage(types.NewAssistantMessage(name, fmt.Sprintf("turn %d, handing to %s", n, target)))
		s.RequestHandoff(name, target, reason)
		return s, nil
	}, target)
}

// Complete 追加总结与完成标记
func Complete(name, summary string) *StubAgent {
	return Say(name, summary+"\n\nTASK COMPLETE")
}

// Fail 每回合返回 err
func Fail(name string, err error) *StubAgent {
	if err == nil {
		err = errors.New("stub failure")
	}
	return NewStubAgent(name, func(_ context.Context, s *agent.WorkflowState, _ int) (*agent.WorkflowState, error) {
		return s, err
	})
}

// Panic 每回合 panic
func Panic(name string, v any) *StubAgent {
	return NewStubAgent(name, func(context.Context, *agent.WorkflowState, int) (*agent.WorkflowState, error) {
		panic(v)
	})
}

// Cycle 构造 names[0]→names[1]→…→names[0] 的文本交接环
func Cycle(calls *Calls, names ...string) []*StubAgent {
	out := make([]*StubAgent, len(names))
	for i, name := range names {
		next := names[(i+1)%len(names)]
		out[i] = TextTransfer(name, next, "next in cycle").WithCalls(calls)
	}
	return out
}

// =============================================================================
// 🏭 注册辅助
// =============================================================================

// Registry 按顺序注册 agents
func Registry(agents ...agent.Agent) *agent.Registry {
	r := agent.NewRegistry(nil)
	for _, a := range agents {
		if err := r.RegisterAgent(a); err != nil {
			panic(err)
		}
	}
	return r
}

// FailingFactory 返回始终失败的工厂
func FailingFactory(err error) agent.Factory {
	return func(context.Context) (agent.Agent, error) {
		return nil, err
	}
}
