// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 会话测试常用的上下文、快照消费与历史断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	states := testutil.TakeStates(stream.States(), 2)
//	testutil.AssertHistory(t, history, state.ThreadID)
//
// =============================================================================
package testutil

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
)

// DefaultTimeout 单个会话测试的上限，足够覆盖 MaxSteps 次回合
const DefaultTimeout = 30 * time.Second

// =============================================================================
// 🎯 上下文
// =============================================================================

// TestContext 返回随测试结束取消的上下文，并附带 DefaultTimeout
func TestContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(t.Context(), DefaultTimeout)
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
// 🎭 快照消费
// =============================================================================

// CollectStates 拉取序列中的全部快照
func CollectStates(seq iter.Seq[*agent.WorkflowState]) []*agent.WorkflowState {
	var states []*agent.WorkflowState
	for s := range seq {
		states = append(states, s)
	}
	return states
}

// TakeStates 最多拉取 n 个快照后停止迭代
func TakeStates(seq iter.Seq[*agent.WorkflowState], n int) []*agent.WorkflowState {
	var states []*agent.WorkflowState
	if n <= 0 {
		return states
	}
	for s := range seq {
		states = append(states, s)
		if len(states) == n {
			break
		}
	}
	return states
}

// AgentsOf 返回每条 assistant 消息的作者，按出现顺序
func AgentsOf(state *agent.WorkflowState) []string {
	var names []string
	for _, m := range state.Messages {
		if m.Role == types.RoleAssistant && m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names
}

// =============================================================================
// 🔍 断言
// =============================================================================

// AssertMessagesEqual 比较角色、作者与内容，忽略时间戳等元数据
func AssertMessagesEqual(t testing.TB, expected, actual []types.Message) {
	t.Helper()
	if !assert.Len(t, actual, len(expected), "message count") {
		return
	}
	for i := range expected {
		assert.Equal(t, expected[i].Role, actual[i].Role, "message[%d] role", i)
		assert.Equal(t, expected[i].Name, actual[i].Name, "message[%d] name", i)
		assert.Equal(t, expected[i].Content, actual[i].Content, "message[%d] content", i)
	}
}

// AssertHistory 检查点历史必须属于同一线程，步号从 1 连续递增，
// 且每个快照的消息数不少于前一个
func AssertHistory(t testing.TB, history []*agent.WorkflowState, threadID string) {
	t.Helper()
	require.NotEmpty(t, history, "empty history")
	for i, st := range history {
		assert.Equal(t, threadID, st.ThreadID, "checkpoint %d thread", i)
		assert.Equal(t, i+1, st.Step, "checkpoint %d step", i)
		if i > 0 {
			assert.GreaterOrEqual(t, len(st.Messages), len(history[i-1].Messages),
				"checkpoint %d lost messages", i)
		}
	}
}
