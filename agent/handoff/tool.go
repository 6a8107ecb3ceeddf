package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
)

// ToolPrefix prefixes every transfer tool name.
const ToolPrefix = "transfer_to_"

// ToolName returns the transfer tool name for target.
func ToolName(target string) string {
	return ToolPrefix + target
}

// TransferTool lets one agent ask for control to pass to Target. Invoking it
// only returns a confirmation; the router performs the transition.
type TransferTool struct {
	From   string
	Target string
	desc   string
}

// NewTransferTool creates the transfer tool exposed to from.
func NewTransferTool(from, target, description string) *TransferTool {
	return &TransferTool{From: from, Target: target, desc: description}
}

// transferArgs is the JSON schema expected in ToolCall.Arguments.
type transferArgs struct {
	Reason string `json:"reason"`
}

// Schema returns the ToolSchema describing this transfer.
func (t *TransferTool) Schema() types.ToolSchema {
	desc := fmt.Sprintf("Transfer control of the task to the %q agent.", t.Target)
	if t.desc != "" {
		desc += " " + t.desc
	}

	params := json.RawMessage(`{
		"type": "object",
		"properties": {
			"reason": {
				"type": "string",
				"description": "Why the task should move to this agent"
			}
		},
		"required": ["reason"]
	}`)

	return types.ToolSchema{
		Name:        ToolName(t.Target),
		Description: desc,
		Parameters:  params,
	}
}

// Invoke returns "transfer_to_<Target>: <reason>".
func (t *TransferTool) Invoke(_ context.Context, args json.RawMessage) (string, error) {
	var a transferArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return "", types.NewError(types.ErrInvalidRequest, "invalid transfer arguments").WithCause(err)
		}
	}
	return Confirmation(t.Target, a.Reason), nil
}

// Confirmation formats the message a transfer leaves in the conversation.
func Confirmation(target, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ToolName(target)
	}
	return ToolName(target) + ": " + reason
}

// ToolSet maps an agent name to the transfer tools it may use.
type ToolSet map[string][]agent.Tool

// Builder synthesizes transfer tools from declared handoff targets.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger.With(zap.String("component", "handoff_builder"))}
}

// Build returns, for every agent in names, one transfer tool per declared
// target. Targets that are not in names, or that name the agent itself, are
// skipped with a warning. An agent with no declared targets gets no tools.
func (b *Builder) Build(names []string, targets func(name string) []string) ToolSet {
	registered := make(map[string]bool, len(names))
	for _, n := range names {
		registered[n] = true
	}

	set := make(ToolSet, len(names))
	for _, from := range names {
		seen := make(map[string]bool)
		var tools []agent.Tool
		for _, to := range targets(from) {
			switch {
			case to == from:
				b.logger.Warn("agent declares itself as handoff target, skipped", zap.String("agent", from))
				continue
			case !registered[to]:
				b.logger.Warn("handoff target not registered, skipped",
					zap.String("agent", from),
					zap.String("target", to),
				)
				continue
			case seen[to]:
				continue
			}
			seen[to] = true
			tools = append(tools, NewTransferTool(from, to, ""))
		}
		if len(tools) > 0 {
			set[from] = tools
		}
	}
	return set
}

// BuildFromAgents builds the tool set for already constructed agents, in
// the order given.
func (b *Builder) BuildFromAgents(agents []agent.Agent) ToolSet {
	names := make([]string, 0, len(agents))
	byName := make(map[string]agent.Agent, len(agents))
	for _, a := range agents {
		names = append(names, a.Name())
		byName[a.Name()] = a
	}
	return b.Build(names, func(name string) []string {
		return byName[name].HandoffTargets()
	})
}
