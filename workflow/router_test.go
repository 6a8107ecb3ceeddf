package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
)

func midSession(active string) *agent.WorkflowState {
	s := agent.NewWorkflowState("task")
	s.Status = agent.StatusInProgress
	s.Step = 1
	s.ActiveAgent = active
	return s
}

func TestRouter_Entry(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		names   []string
		want    string
	}{
		{name: "configured initial agent", initial: "Coder", names: []string{"Planner", "Coder"}, want: "Coder"},
		{name: "unregistered initial falls back to Planner", initial: "Ghost", names: []string{"Coder", "Planner"}, want: "Planner"},
		{name: "legacy Planner default", names: []string{"Coder", "Planner"}, want: "Planner"},
		{name: "first registered", names: []string{"Coder", "Reviewer"}, want: "Coder"},
		{name: "no agents", names: nil, want: END},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(RouterConfig{InitialAgent: tt.initial}, zaptest.NewLogger(t))
			s := agent.NewWorkflowState("task")
			d := r.Route(s, tt.names, 0)
			assert.Equal(t, RuleEntry, d.Rule)
			assert.Equal(t, tt.want, d.To)
			if tt.want != END {
				assert.Equal(t, tt.want, s.ActiveAgent)
			}
		})
	}
}

func TestRouter_TerminalStatusEnds(t *testing.T) {
	r := NewRouter(RouterConfig{}, nil)
	for _, st := range []agent.Status{agent.StatusCompleted, agent.StatusError} {
		s := midSession("A")
		s.Status = st
		s.RequestHandoff("A", "B", "ignored")
		d := r.Route(s, []string{"A", "B"}, 1)
		assert.Equal(t, RuleTerminal, d.Rule, st)
		assert.True(t, d.IsEnd())
	}
}

func TestRouter_PendingHandoff(t *testing.T) {
	r := NewRouter(RouterConfig{}, nil)
	s := midSession("Planner")
	s.RequestHandoff("Planner", "Architect", "needs design")

	d := r.Route(s, []string{"Planner", "Architect"}, 1)
	assert.Equal(t, RulePendingHandoff, d.Rule)
	assert.Equal(t, "Architect", d.To)
	assert.Equal(t, "needs design", d.Reason)
	assert.Equal(t, "Architect", s.ActiveAgent)
	assert.Equal(t, "Planner", s.PreviousAgent)
	assert.Nil(t, s.Handoff, "signal must be consumed")
}

func TestRouter_PendingHandoffToUnknownIsDropped(t *testing.T) {
	r := NewRouter(RouterConfig{}, nil)
	s := midSession("Planner")
	s.RequestHandoff("Planner", "Ghost", "")

	d := r.Route(s, []string{"Planner"}, 0)
	assert.Equal(t, RuleContinue, d.Rule)
	assert.Equal(t, "Planner", d.To)
	assert.Nil(t, s.Handoff)
}

func TestRouter_TextTransfer(t *testing.T) {
	r := NewRouter(RouterConfig{}, nil)
	s := midSession("Planner")
	s.AppendMessage(types.NewAssistantMessage("Planner", "transfer_to_Architect: needs design"))

	d := r.Route(s, []string{"Planner", "Architect"}, 1)
	assert.Equal(t, RuleTextTransfer, d.Rule)
	assert.Equal(t, "Architect", d.To)
	assert.Equal(t, "needs design", d.Reason)
	assert.Equal(t, "Planner", s.PreviousAgent)
}

func TestRouter_StaleMarkersAreIgnored(t *testing.T) {
	r := NewRouter(RouterConfig{}, nil)
	s := midSession("Architect")
	s.AppendMessage(types.NewAssistantMessage("Planner", "transfer_to_Architect: needs design"))

	d := r.Route(s, []string{"Planner", "Architect"}, 0)
	assert.Equal(t, RuleContinue, d.Rule)
	assert.Equal(t, "Architect", d.To)
}

func TestRouter_TextTransferToUnknownIsIgnored(t *testing.T) {
	r := NewRouter(RouterConfig{}, nil)
	s := midSession("Planner")
	s.AppendMessage(types.NewAssistantMessage("Planner", "transfer_to_Ghost: boo"))

	d := r.Route(s, []string{"Planner"}, 1)
	assert.Equal(t, RuleContinue, d.Rule)
}

func TestRouter_CompletionMarker(t *testing.T) {
	r := NewRouter(RouterConfig{}, nil)
	s := midSession("Solo")
	s.AppendMessage(types.NewAssistantMessage("Solo", "all done.\n\nTASK COMPLETE"))

	d := r.Route(s, []string{"Solo"}, 1)
	assert.Equal(t, RuleCompletion, d.Rule)
	assert.True(t, d.IsEnd())
	assert.Equal(t, agent.StatusCompleted, s.Status)
}

func TestRouter_TransferBeatsCompletion(t *testing.T) {
	r := NewRouter(RouterConfig{}, nil)
	s := midSession("A")
	s.AppendMessage(types.NewAssistantMessage("A", "part COMPLETED, transfer_to_B: continue"))

	d := r.Route(s, []string{"A", "B"}, 1)
	assert.Equal(t, RuleTextTransfer, d.Rule)
	assert.Equal(t, "B", d.To)
}

func TestRouter_ReturnToPrevious(t *testing.T) {
	r := NewRouter(RouterConfig{}, nil)
	s := midSession("Removed")
	s.PreviousAgent = "Planner"

	d := r.Route(s, []string{"Planner", "Coder"}, 0)
	assert.Equal(t, RuleReturnPrevious, d.Rule)
	assert.Equal(t, "Planner", d.To)
	assert.Equal(t, "Planner", s.ActiveAgent)
	assert.Empty(t, s.PreviousAgent)
}

func TestRouter_Fallback(t *testing.T) {
	r := NewRouter(RouterConfig{}, zaptest.NewLogger(t))

	s := midSession("Removed")
	d := r.Route(s, []string{"Coder", "Planner"}, 0)
	assert.Equal(t, RuleFallback, d.Rule)
	assert.Equal(t, "Planner", d.To)

	s = midSession("")
	d = r.Route(s, []string{"Coder", "Reviewer"}, 0)
	assert.Equal(t, RuleFallback, d.Rule)
	assert.Equal(t, "Coder", d.To)
}

func TestRouter_NoRoute(t *testing.T) {
	r := NewRouter(RouterConfig{}, nil)
	d := r.Route(midSession("Gone"), nil, 0)
	assert.Equal(t, RuleNoRoute, d.Rule)
	assert.True(t, d.IsEnd())
}

func TestRouteRule_String(t *testing.T) {
	assert.Equal(t, "pending_handoff", RulePendingHandoff.String())
	assert.Equal(t, "rule(42)", RouteRule(42).String())
}

// 相同初始状态 + 相同 Agent 输出 → 相同路由
func TestProperty_RouterDeterminism(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "agents")
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("Agent%d", i)
		}
		pick := rapid.SampledFrom(append(names, "Ghost", ""))

		build := func() *agent.WorkflowState {
			return midSession("")
		}
		active := pick.Draw(t, "active")
		previous := pick.Draw(t, "previous")
		target := pick.Draw(t, "target")
		marker := rapid.SampledFrom([]string{"", "transfer_to_", "complete", "handoff"}).Draw(t, "marker")
		fresh := rapid.IntRange(0, 2).Draw(t, "fresh")

		prepare := func() *agent.WorkflowState {
			s := build()
			s.ActiveAgent = active
			s.PreviousAgent = previous
			switch marker {
			case "transfer_to_":
				s.AppendMessage(types.NewAssistantMessage(active, "transfer_to_"+target+": why"))
			case "complete":
				s.AppendMessage(types.NewAssistantMessage(active, "TASK COMPLETE"))
			case "handoff":
				s.RequestHandoff(active, target, "why")
			}
			return s
		}

		r1 := NewRouter(RouterConfig{}, nil)
		r2 := NewRouter(RouterConfig{}, nil)
		s1, s2 := prepare(), prepare()
		d1 := r1.Route(s1, names, fresh)
		d2 := r2.Route(s2, names, fresh)

		require.Equal(t, d1, d2)
		require.Equal(t, s1.ActiveAgent, s2.ActiveAgent)
		require.Equal(t, s1.PreviousAgent, s2.PreviousAgent)
		require.Equal(t, s1.Status, s2.Status)
		if !d1.IsEnd() {
			require.Contains(t, names, d1.To)
		}
	})
}

func TestRouter_EntrySkipsStandIns(t *testing.T) {
	r := NewRouter(RouterConfig{InitialAgent: "Coder"}, nil)
	assert.Equal(t, "Architect", r.Entry([]string{"Planner", "Architect"}, "Planner"))
	assert.Equal(t, "Planner", r.Entry([]string{"Coder", "Planner"}, "Coder"))
	// 全部是替身时按常规规则给出入口
	assert.Equal(t, "Coder", r.Entry([]string{"Planner", "Coder"}, "Planner", "Coder"))

	s := agent.NewWorkflowState("task")
	d := r.Route(s, []string{"Planner", "Architect"}, 0, "Planner")
	assert.Equal(t, RuleEntry, d.Rule)
	assert.Equal(t, "Architect", d.To)
}

func TestRouter_StandInDoesNotKeepControl(t *testing.T) {
	r := NewRouter(RouterConfig{}, zaptest.NewLogger(t))
	names := []string{"Planner", "Broken", "Coder"}

	s := midSession("Broken")
	d := r.Route(s, names, 0, "Broken")
	assert.Equal(t, RuleFallback, d.Rule)
	assert.Equal(t, "Coder", d.To)
	assert.Equal(t, "Coder", s.ActiveAgent)

	// 环绕到注册顺序开头
	s = midSession("Broken")
	d = r.Route(s, []string{"Planner", "Broken"}, 0, "Broken")
	assert.Equal(t, "Planner", d.To)

	// 有上一个 agent 时交回
	s = midSession("Broken")
	s.PreviousAgent = "Coder"
	d = r.Route(s, names, 0, "Broken")
	assert.Equal(t, RuleReturnPrevious, d.Rule)
	assert.Equal(t, "Coder", d.To)

	// 没有健康 agent 时结束
	s = midSession("Broken")
	d = r.Route(s, []string{"Broken"}, 0, "Broken")
	assert.Equal(t, RuleNoRoute, d.Rule)
	assert.True(t, d.IsEnd())
}

func TestRouter_FallbackSkipsStandIns(t *testing.T) {
	r := NewRouter(RouterConfig{}, nil)
	d := r.Route(midSession("Gone"), []string{"Planner", "Coder"}, 0, "Planner")
	assert.Equal(t, RuleFallback, d.Rule)
	assert.Equal(t, "Coder", d.To)
}
