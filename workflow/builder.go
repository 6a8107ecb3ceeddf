package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/agent/handoff"
	"github.com/BaSui01/agentrelay/types"
)

// Builder compiles a Registry into a Graph and caches the result until the
// registry version changes.
type Builder struct {
	registry *agent.Registry
	router   *Router
	handoffs *handoff.Builder
	logger   *zap.Logger

	mu     sync.Mutex
	cached *Graph
}

// NewBuilder creates a graph builder.
func NewBuilder(registry *agent.Registry, router *Router, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		registry: registry,
		router:   router,
		handoffs: handoff.NewBuilder(logger),
		logger:   logger.With(zap.String("component", "graph_builder")),
	}
}

// Graph returns the compiled graph, recompiling when the registry changed
// since the last compilation.
func (b *Builder) Graph(ctx context.Context) (*Graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cached != nil && b.cached.version == b.registry.Version() {
		return b.cached, nil
	}
	g, err := b.Compile(ctx)
	if err != nil {
		return nil, err
	}
	b.cached = g
	return g, nil
}

// Invalidate drops the cached graph.
func (b *Builder) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cached = nil
}

// Compile builds a fresh graph from the current registry contents.
//
// Agents whose factory or Init fails are replaced by passthrough nodes. A
// panic anywhere in compilation is fatal and returned as a
// GRAPH_COMPILATION error.
func (b *Builder) Compile(ctx context.Context) (g *Graph, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("graph compilation panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			g = nil
			err = types.NewError(types.ErrGraphCompilation, fmt.Sprintf("graph compilation panicked: %v", r))
		}
	}()

	snap := b.registry.Snapshot()
	if len(snap.Names) == 0 {
		b.logger.Warn("compiling graph from empty registry")
		return newEmptyGraph(snap.Version), nil
	}

	g = &Graph{
		nodes:   make(map[string]*Node, len(snap.Names)),
		version: snap.Version,
	}
	for _, name := range snap.Names {
		g.nodes[name] = b.buildNode(ctx, snap, name)
		g.order = append(g.order, name)
	}

	tools := b.handoffs.Build(g.order, func(name string) []string {
		return g.nodes[name].Agent.HandoffTargets()
	})
	for _, name := range g.order {
		if binder, ok := g.nodes[name].Agent.(agent.ToolBinder); ok {
			binder.BindTools(tools[name])
		}
	}

	g.entry = b.router.Entry(g.order, g.Substitutions()...)

	b.logger.Info("graph compiled",
		zap.Uint64("version", g.version),
		zap.Int("nodes", len(g.order)),
		zap.String("entry", g.entry),
		zap.Strings("substituted", g.Substitutions()),
	)
	return g, nil
}

func (b *Builder) buildNode(ctx context.Context, snap agent.Snapshot, name string) *Node {
	a, factory, _ := snap.Agent(name)
	if a == nil && factory != nil {
		built, err := factory(ctx)
		if err != nil {
			return b.substitute(name, fmt.Sprintf("factory failed: %v", err))
		}
		if built == nil {
			return b.substitute(name, "factory returned nil agent")
		}
		a = built
	}
	if init, ok := a.(agent.Initializer); ok {
		if err := init.Init(ctx); err != nil {
			return b.substitute(name, fmt.Sprintf("init failed: %v", err))
		}
	}
	return &Node{Name: name, Agent: a}
}

func (b *Builder) substitute(name, reason string) *Node {
	b.logger.Warn("agent failed to initialize, using passthrough node",
		zap.String("agent", name),
		zap.String("reason", reason),
	)
	return &Node{
		Name:        name,
		Agent:       agent.NewPassthroughAgent(name, reason),
		Substituted: true,
		Reason:      reason,
	}
}
