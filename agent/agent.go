package agent

import (
	"context"
	"encoding/json"

	"github.com/BaSui01/agentrelay/types"
)

// Agent is a named unit of work that takes one turn over the shared state.
//
// Process receives the state owned by the current session and returns the
// state the session should continue with (usually the same pointer). An
// agent signals a handoff by setting state.Handoff, by changing
// state.ActiveAgent, or by appending a message containing
// "transfer_to_<Name>: <reason>". Completion is signalled by setting status
// completed or by a message containing "TASK COMPLETE".
type Agent interface {
	Name() string
	Process(ctx context.Context, state *WorkflowState) (*WorkflowState, error)
	// HandoffTargets lists the agents this agent may transfer control to.
	HandoffTargets() []string
}

// Tool is a callable capability exposed to an agent, such as a transfer tool.
type Tool interface {
	Schema() types.ToolSchema
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// ToolBinder is implemented by agents that accept tools at compile time.
type ToolBinder interface {
	BindTools(tools []Tool)
}

// Initializer is implemented by agents that need setup before their first
// turn. An Init error makes the graph substitute a passthrough node.
type Initializer interface {
	Init(ctx context.Context) error
}

// Describer is implemented by agents that carry a human readable description.
type Describer interface {
	Description() string
}

// Factory constructs an agent lazily, at graph compile time.
type Factory func(ctx context.Context) (Agent, error)
