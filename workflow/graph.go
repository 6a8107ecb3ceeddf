package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
)

// ErrorNode is the single node of a graph compiled from an empty registry.
const ErrorNode = "__error__"

// Node is one compiled graph node.
type Node struct {
	Name  string
	Agent agent.Agent

	// Substituted is set when Agent is a passthrough stand-in for an agent
	// that failed to initialize.
	Substituted bool
	Reason      string
}

// Graph is the compiled, immutable execution structure: one node per
// registered agent, conditional edges from every node to every other node
// plus END, and a single entry point.
type Graph struct {
	nodes   map[string]*Node
	order   []string
	entry   string
	version uint64
}

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// Version returns the registry version the graph was compiled from.
func (g *Graph) Version() uint64 { return g.version }

// Names returns agent node names in registration order. The error node of an
// empty graph is not an agent and is not listed.
func (g *Graph) Names() []string {
	if g.IsEmpty() {
		return nil
	}
	return slices.Clone(g.order)
}

// IsEmpty reports whether the graph was compiled from an empty registry.
func (g *Graph) IsEmpty() bool {
	_, ok := g.nodes[ErrorNode]
	return ok
}

// Node returns the node called name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Edges returns the possible successors of from: every other node and END.
func (g *Graph) Edges(from string) []string {
	out := make([]string, 0, len(g.order))
	for _, n := range g.order {
		if n != from {
			out = append(out, n)
		}
	}
	return append(out, END)
}

// Substitutions returns the names of nodes running as passthrough stand-ins.
func (g *Graph) Substitutions() []string {
	var out []string
	for _, n := range g.order {
		if g.nodes[n].Substituted {
			out = append(out, n)
		}
	}
	return out
}

// newEmptyGraph builds the single-node graph used when no agent is registered.
func newEmptyGraph(version uint64) *Graph {
	n := &Node{Name: ErrorNode, Agent: errorAgent{}}
	return &Graph{
		nodes:   map[string]*Node{ErrorNode: n},
		order:   []string{ErrorNode},
		entry:   ErrorNode,
		version: version,
	}
}

// errorAgent appends an explanatory message and halts the session.
type errorAgent struct{}

const emptyRegistryMessage = "no agents are registered; nothing can process this request"

func (errorAgent) Name() string             { return ErrorNode }
func (errorAgent) HandoffTargets() []string { return nil }

func (errorAgent) Process(_ context.Context, state *agent.WorkflowState) (*agent.WorkflowState, error) {
	state.AppendMessage(types.NewSystemMessage("error: " + emptyRegistryMessage))
	state.Fail(emptyRegistryMessage)
	state.SetMetadata("error_code", string(types.ErrConfiguration))
	return state, nil
}

// =============================================================================
// Description / export
// =============================================================================

// NodeDescription describes one node in an exported graph.
type NodeDescription struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Targets     []string `json:"handoff_targets,omitempty" yaml:"handoff_targets,omitempty"`
	Tools       []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	Substituted bool     `json:"substituted,omitempty" yaml:"substituted,omitempty"`
	Reason      string   `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// EdgeDescription describes the conditional edges leaving a node.
type EdgeDescription struct {
	From string   `json:"from" yaml:"from"`
	To   []string `json:"to" yaml:"to"`
}

// GraphDescription is a serializable view of a compiled graph.
type GraphDescription struct {
	Version uint64            `json:"version" yaml:"version"`
	Entry   string            `json:"entry" yaml:"entry"`
	Nodes   []NodeDescription `json:"nodes" yaml:"nodes"`
	Edges   []EdgeDescription `json:"edges" yaml:"edges"`
}

// Describe exports the graph structure.
func (g *Graph) Describe() GraphDescription {
	d := GraphDescription{Version: g.version, Entry: g.entry}
	for _, name := range g.order {
		n := g.nodes[name]
		nd := NodeDescription{
			Name:        name,
			Targets:     n.Agent.HandoffTargets(),
			Substituted: n.Substituted,
			Reason:      n.Reason,
		}
		if desc, ok := n.Agent.(agent.Describer); ok {
			nd.Description = desc.Description()
		}
		if ts, ok := n.Agent.(interface{ Tools() []types.ToolSchema }); ok {
			for _, s := range ts.Tools() {
				nd.Tools = append(nd.Tools, s.Name)
			}
		}
		d.Nodes = append(d.Nodes, nd)
		d.Edges = append(d.Edges, EdgeDescription{From: name, To: g.Edges(name)})
	}
	return d
}

// ToJSON converts a GraphDescription to JSON string
func (d GraphDescription) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a GraphDescription to YAML string
func (d GraphDescription) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}
