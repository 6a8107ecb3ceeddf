package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/agent/persistence"
	"github.com/BaSui01/agentrelay/testutil/fixtures"
	"github.com/BaSui01/agentrelay/workflow"
)

// newTestEngine 以内存存储构造引擎。
// websocket 处理器在测试结束后仍可能记录日志，因此不用 zaptest。
func newTestEngine(t *testing.T, agents ...agent.Agent) *workflow.Engine {
	t.Helper()
	engine, err := workflow.NewEngine(fixtures.Registry(agents...), workflow.DefaultConfig(),
		workflow.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

// plannerCoder Planner 文本交接给 Coder，Coder 完成任务
func plannerCoder(t *testing.T) *workflow.Engine {
	return newTestEngine(t,
		fixtures.TextTransfer("Planner", "Coder", "needs code"),
		fixtures.Complete("Coder", "wrote main.go"),
	)
}

// failingEngine 所有调用都返回 err
type failingEngine struct {
	err error
}

func (f failingEngine) Run(context.Context, string) (*agent.WorkflowState, error) {
	return nil, f.err
}

func (f failingEngine) Stream(context.Context, string) (*workflow.Stream, error) {
	return nil, f.err
}

func (f failingEngine) LoadHistory(context.Context, string) ([]*agent.WorkflowState, error) {
	return nil, f.err
}

func (f failingEngine) ListThreads(context.Context) ([]persistence.ThreadInfo, error) {
	return nil, f.err
}

func (f failingEngine) DeleteThread(context.Context, string) error {
	return f.err
}

func (f failingEngine) Graph(context.Context) (*workflow.Graph, error) {
	return nil, f.err
}
