package workflow

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/agent/handoff"
)

// END is the terminal routing target.
const END = "__end__"

// DefaultAgent is the legacy default entry and fallback agent name.
const DefaultAgent = "Planner"

// RouteRule identifies which precedence rule produced a routing decision.
type RouteRule int

const (
	RuleTerminal       RouteRule = iota + 1 // status completed (or error) -> END
	RuleEntry                               // first entry
	RulePendingHandoff                      // structured handoff signal
	RuleTextTransfer                        // transfer_to_<Name> in latest message
	RuleCompletion                          // completion marker in latest message
	RuleContinue                            // active agent continues
	RuleReturnPrevious                      // return to previous agent
	RuleFallback                            // Planner, else first registered
	RuleNoRoute                             // nothing resolves -> END
)

var ruleNames = map[RouteRule]string{
	RuleTerminal:       "terminal",
	RuleEntry:          "entry",
	RulePendingHandoff: "pending_handoff",
	RuleTextTransfer:   "text_transfer",
	RuleCompletion:     "completion",
	RuleContinue:       "continue",
	RuleReturnPrevious: "return_previous",
	RuleFallback:       "fallback",
	RuleNoRoute:        "no_route",
}

func (r RouteRule) String() string {
	if s, ok := ruleNames[r]; ok {
		return s
	}
	return fmt.Sprintf("rule(%d)", int(r))
}

// RouteDecision is the outcome of one routing evaluation.
type RouteDecision struct {
	Rule   RouteRule `json:"rule"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
}

// IsEnd reports whether the decision terminates the session.
func (d RouteDecision) IsEnd() bool { return d.To == END }

// RouterConfig is the static routing configuration.
type RouterConfig struct {
	// InitialAgent is the preferred entry agent. Ignored when not registered.
	InitialAgent string
}

// Router decides the next agent from the current state. It evaluates a fixed
// precedence chain, first match wins, and never consults anything but its
// arguments, so identical inputs always give identical decisions.
type Router struct {
	cfg    RouterConfig
	logger *zap.Logger
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, logger: logger.With(zap.String("component", "router"))}
}

// Entry returns the entry agent for names, or END when names is empty.
// Agents listed in standIns (passthrough substitutes) are only chosen when
// no healthy agent is registered.
func (r *Router) Entry(names []string, standIns ...string) string {
	if healthy := withoutStandIns(names, standIns); len(healthy) > 0 {
		names = healthy
	}
	switch {
	case r.cfg.InitialAgent != "" && slices.Contains(names, r.cfg.InitialAgent):
		return r.cfg.InitialAgent
	case slices.Contains(names, DefaultAgent):
		return DefaultAgent
	case len(names) > 0:
		return names[0]
	}
	return END
}

func fallbackAgent(names []string) string {
	if slices.Contains(names, DefaultAgent) {
		return DefaultAgent
	}
	if len(names) > 0 {
		return names[0]
	}
	return END
}

// nextHealthy 注册顺序中 from 之后第一个健康 agent（环绕），没有则 END
func nextHealthy(names, healthy []string, from string) string {
	i := slices.Index(names, from)
	for k := 1; k <= len(names); k++ {
		if n := names[(i+k)%len(names)]; slices.Contains(healthy, n) {
			return n
		}
	}
	return END
}

func withoutStandIns(names, standIns []string) []string {
	if len(standIns) == 0 {
		return names
	}
	return slices.DeleteFunc(slices.Clone(names), func(n string) bool {
		return slices.Contains(standIns, n)
	})
}

// Route evaluates the precedence chain and applies the resulting transition
// to state (active/previous agent, pending handoff, completion status).
//
// names is the registration order. fresh is the number of messages appended
// since the last routing decision; the latest message is only inspected for
// text markers when fresh > 0, so a marker already acted on is not replayed.
// standIns names the passthrough substitutes: they never keep control on
// their own (rule 6) and are skipped by entry and fallback.
func (r *Router) Route(state *agent.WorkflowState, names []string, fresh int, standIns ...string) RouteDecision {
	registered := func(n string) bool { return n != "" && slices.Contains(names, n) }
	healthy := withoutStandIns(names, standIns)
	standIn := slices.Contains(standIns, state.ActiveAgent)
	from := state.ActiveAgent

	// 1. terminal status
	if state.Status.IsTerminal() {
		return RouteDecision{Rule: RuleTerminal, From: from, To: END, Reason: string(state.Status)}
	}

	// 2. first entry
	if state.Step == 0 && state.ActiveAgent == "" {
		to := r.Entry(names, standIns...)
		if to != END {
			state.ActiveAgent = to
		}
		return RouteDecision{Rule: RuleEntry, To: to}
	}

	// 3. pending structured handoff
	if h := state.Handoff; h != nil {
		state.ClearHandoff()
		if registered(h.Target) {
			state.PreviousAgent = state.ActiveAgent
			state.ActiveAgent = h.Target
			return RouteDecision{Rule: RulePendingHandoff, From: from, To: h.Target, Reason: h.Reason}
		}
		r.logger.Warn("handoff target not registered, ignored",
			zap.String("from", from),
			zap.String("target", h.Target),
		)
	}

	latest, hasLatest := state.LatestMessage()
	hasLatest = hasLatest && fresh > 0

	// 4. transfer_to_<Name> in latest message
	if hasLatest {
		if tr, ok := handoff.MessageTransfer(latest, registered); ok {
			state.PreviousAgent = state.ActiveAgent
			state.ActiveAgent = tr.Target
			return RouteDecision{Rule: RuleTextTransfer, From: from, To: tr.Target, Reason: tr.Reason}
		}
	}

	// 5. completion marker
	if hasLatest && handoff.MessageCompletes(latest) {
		if agent.CanTransition(state.Status, agent.StatusCompleted) {
			state.Status = agent.StatusCompleted
		}
		return RouteDecision{Rule: RuleCompletion, From: from, To: END}
	}

	// 6. active agent continues
	if registered(state.ActiveAgent) && !standIn {
		return RouteDecision{Rule: RuleContinue, From: from, To: state.ActiveAgent}
	}

	// 7. return to previous agent
	if registered(state.PreviousAgent) {
		to := state.PreviousAgent
		state.ActiveAgent = to
		state.PreviousAgent = ""
		return RouteDecision{Rule: RuleReturnPrevious, From: from, To: to}
	}

	// 8. documented default; a stand-in with nowhere to return passes
	// control to the next healthy agent in registration order
	to := fallbackAgent(healthy)
	if standIn {
		to = nextHealthy(names, healthy, state.ActiveAgent)
	}
	if to != END {
		r.logger.Warn("routing fell back to default agent",
			zap.String("from", from),
			zap.String("to", to),
		)
		state.ActiveAgent = to
		return RouteDecision{Rule: RuleFallback, From: from, To: to}
	}

	// 9. nothing resolves
	return RouteDecision{Rule: RuleNoRoute, From: from, To: END}
}
