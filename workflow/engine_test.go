package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/agent/persistence"
	"github.com/BaSui01/agentrelay/testutil"
	"github.com/BaSui01/agentrelay/testutil/fixtures"
	"github.com/BaSui01/agentrelay/testutil/mocks"
	"github.com/BaSui01/agentrelay/types"
	"github.com/BaSui01/agentrelay/workflow"
)

func newEngine(t *testing.T, r *agent.Registry, opts ...workflow.Option) (*workflow.Engine, *mocks.RecordingTracer) {
	t.Helper()
	tracer := mocks.NewRecordingTracer()
	opts = append([]workflow.Option{
		workflow.WithLogger(zaptest.NewLogger(t)),
		workflow.WithTracer(tracer),
	}, opts...)
	e, err := workflow.NewEngine(r, workflow.DefaultConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, tracer
}

// =============================================================================
// 场景测试
// =============================================================================

func TestEngine_ScenarioA_TextTransferRoutesToTarget(t *testing.T) {
	planner := fixtures.TextTransfer("Planner", "Architect", "needs design")
	architect := fixtures.Complete("Architect", "design ready")
	e, tracer := newEngine(t, fixtures.Registry(planner, architect))

	state, err := e.Run(testutil.TestContext(t), "build a todo app")
	require.NoError(t, err)

	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Equal(t, []string{"Planner", "Architect"}, tracer.StepAgents())
	assert.Equal(t, 2, state.Step)
	assert.Equal(t, "Planner", state.PreviousAgent)

	routes := tracer.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, workflow.RuleEntry, routes[0].Rule)
	assert.Equal(t, workflow.RuleTextTransfer, routes[1].Rule)
	assert.Equal(t, "Architect", routes[1].To)
	assert.Equal(t, "needs design", routes[1].Reason)
	assert.Equal(t, workflow.RuleCompletion, routes[2].Rule)
}

func TestEngine_ScenarioB_EmptyRegistry(t *testing.T) {
	e, tracer := newEngine(t, agent.NewRegistry(nil))

	state, err := e.Run(testutil.TestContext(t), "anything")
	require.NoError(t, err)

	assert.Equal(t, agent.StatusError, state.Status)
	assert.Contains(t, state.ErrorMessage(), "no agents are registered")
	assert.Equal(t, string(types.ErrConfiguration), state.Metadata["error_code"])
	latest, _ := state.LatestMessage()
	assert.Equal(t, types.RoleSystem, latest.Role)
	assert.Contains(t, latest.Content, "no agents are registered")
	assert.Empty(t, state.ActiveAgent)

	require.Len(t, tracer.Ends(), 1)
	assert.Equal(t, agent.StatusError, tracer.Ends()[0].Status)
}

func TestEngine_ScenarioC_SoloCompletesInOneStep(t *testing.T) {
	solo := fixtures.Complete("SoloAgent", "done")
	e, tracer := newEngine(t, fixtures.Registry(solo))

	state, err := e.Run(testutil.TestContext(t), "quick task")
	require.NoError(t, err)

	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Equal(t, 1, state.Step)
	assert.Equal(t, 1, solo.Invocations())
	assert.Len(t, tracer.Steps(), 1)

	history, err := e.LoadHistory(testutil.TestContext(t), state.ThreadID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, agent.StatusCompleted, history[0].Status)
}

func TestEngine_ScenarioD_StreamStopsWhenConsumerStops(t *testing.T) {
	calls := fixtures.NewCalls()
	cycle := fixtures.Cycle(calls, "A", "B", "C")
	e, tracer := newEngine(t, fixtures.Registry(cycle[0], cycle[1], cycle[2]))

	stream, err := e.Stream(testutil.TestContext(t), "loop forever")
	require.NoError(t, err)
	assert.NotEmpty(t, stream.ThreadID())
	assert.Zero(t, calls.Total(), "stream must not run before the first pull")

	states := testutil.TakeStates(stream.States(), 2)
	require.Len(t, states, 2)
	assert.Equal(t, []string{"A", "B"}, calls.Order())
	assert.Equal(t, 1, states[0].Step)
	assert.Equal(t, 2, states[1].Step)

	// no further agent work after the consumer stopped
	assert.Equal(t, 2, calls.Total())
	require.Len(t, tracer.Ends(), 1)
	assert.Equal(t, agent.StatusInProgress, tracer.Ends()[0].Status)
}

// =============================================================================
// 流式
// =============================================================================

func TestStream_SnapshotsAreIndependent(t *testing.T) {
	planner := fixtures.TextTransfer("Planner", "Coder", "implement")
	coder := fixtures.Complete("Coder", "implemented")
	e, _ := newEngine(t, fixtures.Registry(planner, coder))

	stream, err := e.Stream(testutil.TestContext(t), "task")
	require.NoError(t, err)
	states := testutil.CollectStates(stream.States())
	require.Len(t, states, 2)

	assert.Len(t, states[0].Messages, 2)
	assert.Len(t, states[1].Messages, 3)
	assert.Equal(t, agent.StatusInProgress, states[0].Status)
	assert.Equal(t, agent.StatusCompleted, states[1].Status)

	states[0].Messages[0].Content = "mutated"
	assert.Equal(t, "task", states[1].Messages[0].Content)
	assert.Equal(t, "task", stream.Final().Messages[0].Content)
}

func TestStream_IsNotRestartable(t *testing.T) {
	solo := fixtures.Complete("Solo", "done")
	e, _ := newEngine(t, fixtures.Registry(solo))

	stream, err := e.Stream(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Len(t, testutil.CollectStates(stream.States()), 1)
	assert.Empty(t, testutil.CollectStates(stream.States()))
	assert.Equal(t, 1, solo.Invocations())
}

func TestStream_EachCallStartsNewThread(t *testing.T) {
	e, _ := newEngine(t, fixtures.Registry(fixtures.Complete("Solo", "done")))
	ctx := testutil.TestContext(t)

	s1, err := e.Stream(ctx, "one")
	require.NoError(t, err)
	s2, err := e.Stream(ctx, "two")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ThreadID(), s2.ThreadID())
}

func TestStream_EndsAtError(t *testing.T) {
	e, _ := newEngine(t, fixtures.Registry(fixtures.Fail("Broken", errors.New("boom"))))
	stream, err := e.Stream(testutil.TestContext(t), "task")
	require.NoError(t, err)

	states := testutil.CollectStates(stream.States())
	require.Len(t, states, 1)
	assert.Equal(t, agent.StatusError, states[0].Status)
}

// =============================================================================
// 错误处理
// =============================================================================

func TestEngine_AgentErrorBecomesErrorState(t *testing.T) {
	store := mocks.NewMockCheckpointStore()
	e, _ := newEngine(t, fixtures.Registry(fixtures.Fail("Planner", errors.New("model unavailable"))),
		workflow.WithStore(store))

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)

	assert.Equal(t, agent.StatusError, state.Status)
	assert.Contains(t, state.ErrorMessage(), "model unavailable")
	assert.Equal(t, "Planner", state.Metadata["error_agent"])
	assert.Equal(t, string(types.ErrAgentExecution), state.Metadata["error_code"])

	saves := store.Saves()
	require.Len(t, saves, 1)
	assert.Equal(t, agent.StatusError, saves[0].Status)
}

func TestEngine_AgentPanicBecomesErrorState(t *testing.T) {
	e, _ := newEngine(t, fixtures.Registry(fixtures.Panic("Planner", "nil map write")))

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusError, state.Status)
	assert.Contains(t, state.ErrorMessage(), "nil map write")
}

func TestEngine_NilStateIsAnError(t *testing.T) {
	nilAgent := fixtures.NewStubAgent("Planner", func(context.Context, *agent.WorkflowState, int) (*agent.WorkflowState, error) {
		return nil, nil
	})
	e, _ := newEngine(t, fixtures.Registry(nilAgent))

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusError, state.Status)
	assert.Contains(t, state.ErrorMessage(), "nil state")
}

func TestEngine_BackwardStatusIsRejected(t *testing.T) {
	regress := fixtures.NewStubAgent("Planner", func(_ context.Context, s *agent.WorkflowState, _ int) (*agent.WorkflowState, error) {
		s.Status = agent.StatusPending
		return s, nil
	})
	e, _ := newEngine(t, fixtures.Registry(regress))

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusError, state.Status)
	assert.Equal(t, string(types.ErrInvalidTransition), state.Metadata["error_code"])
}

func TestEngine_StepLimit(t *testing.T) {
	ping := fixtures.TextTransfer("Ping", "Pong", "your turn")
	pong := fixtures.TextTransfer("Pong", "Ping", "your turn")
	e, tracer := newEngine(t, fixtures.Registry(ping, pong), workflow.WithMaxSteps(7))

	state, err := e.Run(testutil.TestContext(t), "rally")
	require.NoError(t, err)

	assert.Equal(t, agent.StatusError, state.Status)
	assert.Equal(t, 7, state.Step)
	assert.True(t, strings.HasPrefix(state.ErrorMessage(), "step_limit"))
	assert.Equal(t, string(types.ErrStepLimit), state.Metadata["error_code"])
	assert.Len(t, tracer.Steps(), 7)
}

func TestEngine_CompileFailureIsReturned(t *testing.T) {
	r := agent.NewRegistry(nil)
	require.NoError(t, r.RegisterFactory("Exploding", func(context.Context) (agent.Agent, error) {
		panic("bad wiring")
	}))
	e, _ := newEngine(t, r)

	state, err := e.Run(testutil.TestContext(t), "task")
	require.Error(t, err)
	assert.Nil(t, state)
	assert.True(t, types.IsErrorCode(err, types.ErrGraphCompilation))

	_, err = e.Stream(testutil.TestContext(t), "task")
	assert.True(t, types.IsErrorCode(err, types.ErrGraphCompilation))
}

func TestEngine_FailedFactoryRunsAsPassthrough(t *testing.T) {
	r := agent.NewRegistry(nil)
	planner := fixtures.TextTransfer("Planner", "Broken", "please help")
	require.NoError(t, r.RegisterAgent(planner))
	require.NoError(t, r.RegisterFactory("Broken", fixtures.FailingFactory(errors.New("missing api key"))))
	e, tracer := newEngine(t, r, workflow.WithMaxSteps(5))

	g, err := e.Graph(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"Broken"}, g.Substitutions())

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	// Planner -> Broken (passthrough hands back) -> Planner -> ...
	assert.Equal(t, []string{"Planner", "Broken", "Planner"}, tracer.StepAgents()[:3])
	assert.Equal(t, agent.StatusError, state.Status)
}

func TestEngine_FailedEntryFactoryHandsToHealthyAgent(t *testing.T) {
	r := agent.NewRegistry(nil)
	require.NoError(t, r.RegisterFactory("Planner", fixtures.FailingFactory(errors.New("missing api key"))))
	require.NoError(t, r.RegisterAgent(fixtures.Complete("Architect", "design ready")))
	e, tracer := newEngine(t, r)

	g, err := e.Graph(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"Planner"}, g.Substitutions())
	assert.Equal(t, "Architect", g.Entry())

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Equal(t, []string{"Architect"}, tracer.StepAgents())
	assert.Equal(t, 1, state.Step)
}

func TestEngine_SubstitutedInitialAgentIsSkipped(t *testing.T) {
	r := agent.NewRegistry(nil)
	require.NoError(t, r.RegisterFactory("Broken", fixtures.FailingFactory(errors.New("boom"))))
	require.NoError(t, r.RegisterAgent(fixtures.Complete("Planner", "planned")))
	e, tracer := newEngine(t, r, workflow.WithInitialAgent("Broken"))

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Equal(t, []string{"Planner"}, tracer.StepAgents())
}

func TestEngine_CancelMidSessionKeepsLastTurnCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(testutil.TestContext(t))
	defer cancel()
	a := fixtures.NewStubAgent("A", func(_ context.Context, s *agent.WorkflowState, _ int) (*agent.WorkflowState, error) {
		s.AppendMessage(types.NewAssistantMessage("A", "first draft"))
		cancel()
		return s, nil
	})
	e, _ := newEngine(t, fixtures.Registry(a))

	state, err := e.Run(ctx, "task")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusError, state.Status)
	assert.Contains(t, state.ErrorMessage(), "canceled")
	assert.Equal(t, 1, a.Invocations())

	history, err := e.LoadHistory(testutil.TestContext(t), state.ThreadID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	testutil.AssertHistory(t, history, state.ThreadID)

	// 第 1 步快照保持回合结束时的样子，终态另占一步
	assert.Equal(t, agent.StatusInProgress, history[0].Status)
	assert.Equal(t, "first draft", history[0].Messages[len(history[0].Messages)-1].Content)
	assert.Empty(t, history[0].ErrorMessage())
	assert.Equal(t, agent.StatusError, history[1].Status)
	assert.Equal(t, 2, state.Step)
}

func TestEngine_CanceledContextStopsSession(t *testing.T) {
	e, _ := newEngine(t, fixtures.Registry(fixtures.Complete("Solo", "done")))

	state, err := e.Run(testutil.CancelledContext(), "task")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusError, state.Status)
	assert.Contains(t, state.ErrorMessage(), "canceled")
}

// =============================================================================
// 信号
// =============================================================================

func TestEngine_StructuredHandoff(t *testing.T) {
	planner := fixtures.Handoff("Planner", "Coder", "write code")
	coder := fixtures.Complete("Coder", "code written")
	e, tracer := newEngine(t, fixtures.Registry(planner, coder))

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Nil(t, state.Handoff)
	assert.Equal(t, workflow.RulePendingHandoff, tracer.Routes()[1].Rule)
}

func TestEngine_DirectActiveAgentChange(t *testing.T) {
	planner := fixtures.NewStubAgent("Planner", func(_ context.Context, s *agent.WorkflowState, _ int) (*agent.WorkflowState, error) {
		s.AppendMessage(types.NewAssistantMessage("Planner", "over to the reviewer"))
		s.ActiveAgent = "Reviewer"
		return s, nil
	})
	reviewer := fixtures.Complete("Reviewer", "looks good")
	e, tracer := newEngine(t, fixtures.Registry(planner, reviewer))

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Equal(t, []string{"Planner", "Reviewer"}, tracer.StepAgents())
	assert.Equal(t, "Reviewer", state.ActiveAgent)
	assert.Equal(t, "Planner", state.PreviousAgent)
}

func TestEngine_CompletionMarkerOverridesHandoff(t *testing.T) {
	planner := fixtures.NewStubAgent("Planner", func(_ context.Context, s *agent.WorkflowState, _ int) (*agent.WorkflowState, error) {
		s.RequestHandoff("Planner", "Coder", "")
		s.AppendMessage(types.NewAssistantMessage("Planner", "actually nothing to do. TASK COMPLETE"))
		return s, nil
	})
	coder := fixtures.Say("Coder", "unexpected")
	e, _ := newEngine(t, fixtures.Registry(planner, coder))

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Zero(t, coder.Invocations())
}

func TestEngine_ContentAgentTransfer(t *testing.T) {
	r := agent.NewRegistry(nil)
	require.NoError(t, r.RegisterAgent(agent.NewContentAgent("Planner", func(ctx context.Context, turn *agent.Turn) error {
		turn.Say("plan ready")
		return turn.Transfer(ctx, "Architect", "needs design")
	}, agent.WithTargets("Architect"))))
	require.NoError(t, r.RegisterAgent(agent.NewContentAgent("Architect", func(_ context.Context, turn *agent.Turn) error {
		turn.SetArtifact("design", "three tiers")
		return turn.Complete("design done")
	})))
	e, tracer := newEngine(t, r)

	state, err := e.Run(testutil.TestContext(t), "build")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Equal(t, []string{"Planner", "Architect"}, tracer.StepAgents())
	assert.Equal(t, "three tiers", state.Artifacts["design"])
	require.Len(t, tracer.Ends(), 1)
	assert.Equal(t, "three tiers", tracer.Ends()[0].Artifacts["design"])
}

// =============================================================================
// 旁路失败
// =============================================================================

func TestEngine_TracerFailuresAreSwallowed(t *testing.T) {
	tracer := mocks.NewRecordingTracer().
		WithStartError(errors.New("collector down")).
		WithStepPanic("exporter bug").
		WithEndError(errors.New("collector down"))
	e, err := workflow.NewEngine(fixtures.Registry(fixtures.Complete("Solo", "done")), workflow.Config{},
		workflow.WithTracer(tracer), workflow.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Equal(t, 3, tracer.SideErrors(types.ErrTracing))
}

func TestEngine_PersistenceFailuresAreSuppressed(t *testing.T) {
	store := mocks.NewMockCheckpointStore().WithSaveError(errors.New("disk full"))
	planner := fixtures.TextTransfer("Planner", "Coder", "go")
	coder := fixtures.Complete("Coder", "done")
	e, tracer := newEngine(t, fixtures.Registry(planner, coder), workflow.WithStore(store))

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Len(t, store.Saves(), 2)
	assert.Equal(t, 2, tracer.SideErrors(types.ErrPersistence))
}

func TestEngine_PanickingStoreIsSuppressed(t *testing.T) {
	store := mocks.NewMockCheckpointStore().WithSavePanic("driver bug")
	e, tracer := newEngine(t, fixtures.Registry(fixtures.Complete("Solo", "done")), workflow.WithStore(store))

	state, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, state.Status)
	assert.Equal(t, 1, tracer.SideErrors(types.ErrPersistence))
}

// =============================================================================
// 会话管理
// =============================================================================

func TestEngine_HistoryReplaysEveryTurn(t *testing.T) {
	dir := t.TempDir()
	planner := fixtures.TextTransfer("Planner", "Coder", "implement")
	coder := fixtures.Complete("Coder", "implemented")
	e, err := workflow.NewEngine(fixtures.Registry(planner, coder),
		workflow.Config{PersistDirectory: dir}, workflow.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer e.Close()
	_, isFile := e.Store().(*persistence.FileStore)
	assert.True(t, isFile)

	ctx := testutil.TestContext(t)
	state, err := e.Run(ctx, "task")
	require.NoError(t, err)

	history, err := e.LoadHistory(ctx, state.ThreadID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	testutil.AssertHistory(t, history, state.ThreadID)
	testutil.AssertMessagesEqual(t, state.Messages, history[1].Messages)
	assert.Equal(t, []string{"Planner", "Coder"}, testutil.AgentsOf(state))
	assert.Equal(t, state.Status, history[1].Status)

	threads, err := e.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, state.ThreadID, threads[0].ThreadID)

	require.NoError(t, e.DeleteThread(ctx, state.ThreadID))
	_, err = e.LoadHistory(ctx, state.ThreadID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestEngine_ThreadIDGenerator(t *testing.T) {
	var n atomic.Int64
	e, _ := newEngine(t, fixtures.Registry(fixtures.Complete("Solo", "done")),
		workflow.WithThreadIDGenerator(func() string { return fmt.Sprintf("thread-%d", n.Add(1)) }))

	s1, err := e.Run(testutil.TestContext(t), "a")
	require.NoError(t, err)
	s2, err := e.Run(testutil.TestContext(t), "b")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", s1.ThreadID)
	assert.Equal(t, "thread-2", s2.ThreadID)
}

func TestEngine_RunBatch(t *testing.T) {
	e, _ := newEngine(t, fixtures.Registry(
		fixtures.NewStubAgent("Echo", func(_ context.Context, s *agent.WorkflowState, _ int) (*agent.WorkflowState, error) {
			s.AppendMessage(types.NewAssistantMessage("Echo", s.TaskDescription+" TASK COMPLETE"))
			return s, nil
		})))

	inputs := []string{"one", "two", "three", "four", "five"}
	results, err := e.RunBatch(testutil.TestContext(t), inputs, 2)
	require.NoError(t, err)
	require.Len(t, results, len(inputs))
	for i, st := range results {
		assert.Equal(t, inputs[i], st.TaskDescription)
		assert.Equal(t, agent.StatusCompleted, st.Status)
	}
}

func TestEngine_RegistryChangesRecompile(t *testing.T) {
	r := fixtures.Registry(fixtures.Complete("Solo", "done"))
	e, tracer := newEngine(t, r)
	ctx := testutil.TestContext(t)

	g1, err := e.Graph(ctx)
	require.NoError(t, err)
	g2, err := e.Graph(ctx)
	require.NoError(t, err)
	assert.Same(t, g1, g2)

	require.NoError(t, r.RegisterAgent(fixtures.Complete("Planner", "planned")))
	g3, err := e.Graph(ctx)
	require.NoError(t, err)
	assert.NotSame(t, g1, g3)
	assert.Equal(t, "Planner", g3.Entry())

	_, err = e.Run(ctx, "task")
	require.NoError(t, err)
	assert.Equal(t, []string{"Planner"}, tracer.StepAgents())
}

func TestEngine_Validate(t *testing.T) {
	ctx := testutil.TestContext(t)

	empty, _ := newEngine(t, agent.NewRegistry(nil))
	err := empty.Validate(ctx)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrConfiguration))

	ok, _ := newEngine(t, fixtures.Registry(fixtures.Complete("Solo", "done")))
	assert.NoError(t, ok.Validate(ctx))
}

func TestEngine_InitialAgent(t *testing.T) {
	planner := fixtures.Complete("Planner", "planned")
	coder := fixtures.Complete("Coder", "coded")
	e, tracer := newEngine(t, fixtures.Registry(planner, coder), workflow.WithInitialAgent("Coder"))

	_, err := e.Run(testutil.TestContext(t), "task")
	require.NoError(t, err)
	assert.Equal(t, []string{"Coder"}, tracer.StepAgents())
}
