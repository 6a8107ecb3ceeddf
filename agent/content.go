package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/BaSui01/agentrelay/types"
)

// CompletionMarker is appended by Turn.Complete.
const CompletionMarker = "TASK COMPLETE"

// ProcessFunc does the real work of a ContentAgent for one turn.
type ProcessFunc func(ctx context.Context, turn *Turn) error

// ContentAgent is the general purpose agent: its behavior is a ProcessFunc,
// its handoff targets are fixed at construction, and transfer tools are
// bound by the graph builder.
type ContentAgent struct {
	name        string
	description string
	targets     []string
	fn          ProcessFunc
	initFn      func(ctx context.Context) error

	mu    sync.RWMutex
	tools map[string]Tool
}

// ContentOption configures a ContentAgent.
type ContentOption func(*ContentAgent)

// WithTargets declares the agents this agent may hand off to.
func WithTargets(targets ...string) ContentOption {
	return func(a *ContentAgent) { a.targets = append(a.targets, targets...) }
}

// WithDescription sets the description shown in graph exports and the API.
func WithDescription(desc string) ContentOption {
	return func(a *ContentAgent) { a.description = desc }
}

// WithInit sets a setup hook run once at compile time.
func WithInit(fn func(ctx context.Context) error) ContentOption {
	return func(a *ContentAgent) { a.initFn = fn }
}

// NewContentAgent creates a ContentAgent.
func NewContentAgent(name string, fn ProcessFunc, opts ...ContentOption) *ContentAgent {
	a := &ContentAgent{
		name:  name,
		fn:    fn,
		tools: make(map[string]Tool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *ContentAgent) Name() string             { return a.name }
func (a *ContentAgent) Description() string      { return a.description }
func (a *ContentAgent) HandoffTargets() []string { return slices.Clone(a.targets) }

// Init runs the configured setup hook.
func (a *ContentAgent) Init(ctx context.Context) error {
	if a.initFn == nil {
		return nil
	}
	return a.initFn(ctx)
}

// BindTools replaces the tools available to the agent.
func (a *ContentAgent) BindTools(tools []Tool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools = make(map[string]Tool, len(tools))
	for _, t := range tools {
		a.tools[t.Schema().Name] = t
	}
}

// Tools returns the schemas of the bound tools, sorted by name.
func (a *ContentAgent) Tools() []types.ToolSchema {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]types.ToolSchema, 0, len(a.tools))
	for _, t := range a.tools {
		out = append(out, t.Schema())
	}
	slices.SortFunc(out, func(x, y types.ToolSchema) int {
		switch {
		case x.Name < y.Name:
			return -1
		case x.Name > y.Name:
			return 1
		}
		return 0
	})
	return out
}

func (a *ContentAgent) tool(name string) (Tool, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.tools[name]
	return t, ok
}

// Process runs the ProcessFunc against state.
func (a *ContentAgent) Process(ctx context.Context, state *WorkflowState) (*WorkflowState, error) {
	if a.fn == nil {
		return state, nil
	}
	turn := &Turn{agent: a, State: state}
	if err := a.fn(ctx, turn); err != nil {
		return state, err
	}
	return state, nil
}

// Turn is the view a ProcessFunc gets of the current turn.
type Turn struct {
	agent *ContentAgent

	// State is the live session state; direct edits are allowed.
	State *WorkflowState
}

// Agent returns the name of the agent taking the turn.
func (t *Turn) Agent() string { return t.agent.name }

// Say appends an assistant message authored by the agent.
func (t *Turn) Say(content string) {
	t.State.AppendMessage(types.NewAssistantMessage(t.agent.name, content))
}

// Transfer invokes the bound transfer_to_<target> tool, records its
// confirmation as a tool message and leaves a structured handoff signal for
// the router.
func (t *Turn) Transfer(ctx context.Context, target, reason string) error {
	name := "transfer_to_" + target
	tool, ok := t.agent.tool(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotBound, name)
	}
	args, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return err
	}
	callID := "call_" + uuid.NewString()
	t.State.AppendMessage(types.Message{
		Role: types.RoleAssistant,
		Name: t.agent.name,
		ToolCalls: []types.ToolCall{{
			ID:        callID,
			Name:      name,
			Arguments: args,
		}},
	})
	confirmation, err := tool.Invoke(ctx, args)
	if err != nil {
		return err
	}
	t.State.AppendMessage(types.NewToolMessage(callID, name, confirmation))
	t.State.RequestHandoff(t.agent.name, target, reason)
	return nil
}

// Complete appends a completion message and marks the session completed.
func (t *Turn) Complete(summary string) error {
	content := CompletionMarker
	if summary != "" {
		content = summary + "\n\n" + CompletionMarker
	}
	t.Say(content)
	t.State.ClearHandoff()
	return t.State.SetStatus(StatusCompleted)
}

// SetArtifact stores a named artifact on the session.
func (t *Turn) SetArtifact(name string, value any) {
	t.State.SetArtifact(name, value)
}
