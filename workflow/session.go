package workflow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/agent/handoff"
	"github.com/BaSui01/agentrelay/internal/ctxkeys"
	"github.com/BaSui01/agentrelay/types"
)

// session is the step machine of one thread. It never starts goroutines:
// Run drives it in a loop and Stream drives it one pull at a time.
type session struct {
	engine *Engine
	ctx    context.Context
	graph  *Graph
	names  []string
	state  *agent.WorkflowState
	logger *zap.Logger

	// passthrough substitutes, skipped by entry and fallback routing
	standIns []string

	next    string
	seen    int // message count at the last routing decision
	started bool
	done    bool
	ended   bool
}

func (s *session) start() {
	if s.started {
		return
	}
	s.started = true
	e := s.engine
	_ = s.state.SetStatus(agent.StatusInProgress)

	e.trace(s.ctx, "session_start", func() error {
		return e.tracer.OnSessionStart(s.ctx, s.state.ThreadID, s.state.TaskDescription)
	})
	s.logger.Debug("session started", zap.Int("agents", len(s.names)))

	if s.graph.IsEmpty() {
		s.next = ErrorNode
		s.seen = len(s.state.Messages)
		return
	}
	d := e.router.Route(s.state, s.names, 0, s.standIns...)
	s.seen = len(s.state.Messages)
	s.observe(d)
	if d.IsEnd() {
		s.finish(d)
		return
	}
	s.next = d.To
}

// step runs one agent turn, routes, checkpoints and returns a snapshot.
func (s *session) step() *agent.WorkflowState {
	e := s.engine
	name := s.next

	if err := s.ctx.Err(); err != nil {
		s.state.Fail(fmt.Sprintf("session canceled: %v", err))
		return s.abort()
	}

	node, ok := s.graph.Node(name)
	if !ok {
		s.state.Fail(fmt.Sprintf("routed to unknown agent %q", name))
		s.state.SetMetadata("error_code", string(types.ErrNotFound))
		return s.abort()
	}

	turn := s.state.Step + 1
	ctx := ctxkeys.WithThreadID(s.ctx, s.state.ThreadID)
	ctx = ctxkeys.WithStep(ctx, turn)
	ctx = ctxkeys.WithAgent(ctx, name)

	before := len(s.state.Messages)
	prevStatus := s.state.Status
	input := e.summarizer.Input(s.state)

	started := time.Now()
	err := s.invoke(ctx, node)
	duration := time.Since(started)

	s.state.Step++
	if err != nil {
		s.logger.Warn("agent turn failed",
			zap.String("agent", name),
			zap.Int("step", s.state.Step),
			zap.Error(err))
		s.state.Fail(err.Error())
		s.state.SetMetadata("error_agent", name)
		s.state.SetMetadata("error_code", string(types.ErrAgentExecution))
	} else if !s.graph.IsEmpty() {
		s.normalizeActive(name)
		if !agent.CanTransition(prevStatus, s.state.Status) {
			bad := agent.ErrInvalidTransition{From: prevStatus, To: s.state.Status}
			s.state.Status = prevStatus
			s.state.Fail(bad.Error())
			s.state.SetMetadata("error_agent", name)
			s.state.SetMetadata("error_code", string(bad.Code()))
		}
	}

	e.trace(ctx, "step", func() error {
		return e.tracer.OnStep(ctx, StepTrace{
			ThreadID:      s.state.ThreadID,
			Step:          s.state.Step,
			Agent:         name,
			InputSummary:  input,
			OutputSummary: e.summarizer.Output(s.state, before),
			Duration:      duration,
			Status:        s.state.Status,
			Err:           err,
		})
	})

	if s.state.Status == agent.StatusError {
		s.done = true
		return s.checkpoint()
	}

	fresh := len(s.state.Messages) - s.seen
	d := e.router.Route(s.state, s.names, fresh, s.standIns...)
	s.seen = len(s.state.Messages)
	d = s.guardTermination(d, fresh)
	s.observe(d)

	switch {
	case d.IsEnd():
		s.finish(d)
	case s.state.Step >= e.cfg.MaxSteps:
		s.logger.Warn("step limit reached",
			zap.Int("max_steps", e.cfg.MaxSteps),
			zap.String("next", d.To))
		s.state.Fail(fmt.Sprintf("step_limit: session exceeded %d steps", e.cfg.MaxSteps))
		s.state.SetMetadata("error_code", string(types.ErrStepLimit))
		s.done = true
	default:
		s.next = d.To
	}
	return s.checkpoint()
}

// abort ends the session before an agent ran. The terminal snapshot takes
// the next step so the checkpoint of the last completed turn stays intact.
func (s *session) abort() *agent.WorkflowState {
	s.state.Step++
	s.done = true
	return s.checkpoint()
}

// invoke runs the agent, converting panics and a nil result into errors.
func (s *session) invoke(ctx context.Context, node *Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("agent panicked",
				zap.String("agent", node.Name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = types.NewAgentExecutionError(node.Name, fmt.Errorf("panic: %v", r))
		}
	}()

	out, err := node.Agent.Process(ctx, s.state)
	if err != nil {
		return types.NewAgentExecutionError(node.Name, err)
	}
	if out == nil {
		return types.NewAgentExecutionError(node.Name, errors.New("agent returned nil state"))
	}
	if out != s.state {
		out.ThreadID = s.state.ThreadID
		s.state = out
	}
	return nil
}

// normalizeActive turns a direct active_agent assignment into a structured
// handoff so the router applies it with the usual previous-agent bookkeeping.
func (s *session) normalizeActive(ran string) {
	if s.state.ActiveAgent == ran {
		return
	}
	if s.state.Handoff == nil && s.state.ActiveAgent != "" {
		s.state.RequestHandoff(ran, s.state.ActiveAgent, "active_agent set by agent")
	}
	s.state.ActiveAgent = ran
}

// guardTermination re-checks termination independently of the router.
func (s *session) guardTermination(d RouteDecision, fresh int) RouteDecision {
	if d.IsEnd() {
		return d
	}
	latest, ok := s.state.LatestMessage()
	marker := ok && fresh > 0 && handoff.MessageCompletes(latest)
	if s.state.Status != agent.StatusCompleted && !marker {
		return d
	}
	if s.state.Status != agent.StatusCompleted {
		_ = s.state.SetStatus(agent.StatusCompleted)
	}
	s.logger.Debug("completion overrides route",
		zap.String("rule", d.Rule.String()),
		zap.String("to", d.To))
	return RouteDecision{Rule: RuleCompletion, From: d.From, To: END, Reason: "completion detected"}
}

func (s *session) finish(d RouteDecision) {
	if s.state.Status == agent.StatusInProgress {
		s.state.Status = agent.StatusCompleted
	}
	s.done = true
	s.logger.Debug("session reached end",
		zap.String("rule", d.Rule.String()),
		zap.Int("steps", s.state.Step))
}

func (s *session) observe(d RouteDecision) {
	e := s.engine
	if o, ok := e.tracer.(RouteObserver); ok {
		_ = callTracer(func() error { o.OnRoute(s.ctx, s.state.ThreadID, d); return nil })
	}
}

// checkpoint persists the state under the current step, closes the session
// when done and returns an independent snapshot.
func (s *session) checkpoint() *agent.WorkflowState {
	e := s.engine
	if err := s.save(); err != nil {
		s.logger.Warn("checkpoint save failed",
			zap.Int("step", s.state.Step),
			zap.Error(err))
		e.sideChannel(s.ctx, types.ErrPersistence, err)
	}
	snapshot := s.state.Clone()
	if s.done {
		s.end()
	}
	return snapshot
}

func (s *session) save() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("checkpoint store panicked: %v", r)
		}
	}()
	// 取消只终止会话，终态快照仍要落盘
	ctx := context.WithoutCancel(s.ctx)
	return s.engine.store.Save(ctx, s.state.ThreadID, s.state.Step, s.state)
}

// end reports the session end once.
func (s *session) end() {
	if s.ended {
		return
	}
	s.ended = true
	e := s.engine
	state := s.state
	e.trace(s.ctx, "session_end", func() error {
		return e.tracer.OnSessionEnd(s.ctx, state.ThreadID, state.Status, state.Clone().Artifacts)
	})
	s.logger.Info("session finished",
		zap.String("status", string(state.Status)),
		zap.Int("steps", state.Step),
		zap.String("error", state.ErrorMessage()))
}

// =============================================================================
// Stream
// =============================================================================

// Stream is a lazy, finite and non-restartable sequence of per-turn
// snapshots. Execution advances only while the consumer pulls.
type Stream struct {
	session *session
	used    atomic.Bool
}

// ThreadID returns the thread id allocated for the session.
func (st *Stream) ThreadID() string { return st.session.state.ThreadID }

// States yields one independent snapshot per turn. Only the first iteration
// runs the session; later iterations yield nothing. Stopping early ends the
// session without running further agents.
func (st *Stream) States() iter.Seq[*agent.WorkflowState] {
	return func(yield func(*agent.WorkflowState) bool) {
		if !st.used.CompareAndSwap(false, true) {
			return
		}
		s := st.session
		s.start()
		if s.done {
			// ended at entry without running an agent
			yield(s.checkpoint())
			return
		}
		for !s.done {
			if !yield(s.step()) {
				s.end()
				return
			}
		}
	}
}

// Final returns a snapshot of the current session state.
func (st *Stream) Final() *agent.WorkflowState { return st.session.state.Clone() }
