package agent

import "context"

// PassthroughAgent stands in for an agent that failed to initialize. It
// adds no content and declares no handoff targets; when it was reached
// through a handoff it hands control back to the agent that sent it.
type PassthroughAgent struct {
	name   string
	reason string
}

// NewPassthroughAgent creates a passthrough stand-in for name.
func NewPassthroughAgent(name, reason string) *PassthroughAgent {
	return &PassthroughAgent{name: name, reason: reason}
}

func (p *PassthroughAgent) Name() string             { return p.name }
func (p *PassthroughAgent) HandoffTargets() []string { return nil }

// Reason returns why the real agent was replaced.
func (p *PassthroughAgent) Reason() string { return p.reason }

// Process returns state with no new messages or artifacts.
func (p *PassthroughAgent) Process(_ context.Context, state *WorkflowState) (*WorkflowState, error) {
	if prev := state.PreviousAgent; prev != "" && prev != p.name && state.Handoff == nil {
		state.RequestHandoff(p.name, prev, "agent unavailable: "+p.reason)
	}
	return state, nil
}
