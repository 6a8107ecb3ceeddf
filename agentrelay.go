// Package agentrelay provides a top-level convenience entry point for creating
// a relay engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/agentrelay"
//
//	engine, err := agentrelay.New(
//		agentrelay.WithAgents(planner, coder),
//		agentrelay.WithInitialAgent("Planner"),
//	)
//	state, err := engine.Run(ctx, "build a CLI")
//
// Declarative agents can be mixed in with [WithDefinitions]; they are built
// with the builtin kinds the first time the graph is compiled.
package agentrelay

import (
	"errors"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/agent/persistence"
	"github.com/BaSui01/agentrelay/workflow"
)

// Option configures the engine created by New.
type Option func(*options)

type options struct {
	agents      []agent.Agent
	definitions []agent.Definition
	config      workflow.Config
	store       persistence.CheckpointStore
	tracers     []workflow.Tracer
	logger      *zap.Logger
}

// WithAgents registers agents built in code, in order.
func WithAgents(agents ...agent.Agent) Option {
	return func(o *options) { o.agents = append(o.agents, agents...) }
}

// WithDefinitions registers declarative agents after the ones given to WithAgents.
func WithDefinitions(defs ...agent.Definition) Option {
	return func(o *options) { o.definitions = append(o.definitions, defs...) }
}

// WithInitialAgent sets the preferred entry agent.
func WithInitialAgent(name string) Option {
	return func(o *options) { o.config.InitialAgent = name }
}

// WithMaxSteps caps the number of turns per session.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.config.MaxSteps = n }
}

// WithPersistDirectory keeps checkpoints as JSON files under dir.
func WithPersistDirectory(dir string) Option {
	return func(o *options) { o.config.PersistDirectory = dir }
}

// WithStore injects a checkpoint store. The caller keeps ownership of it.
func WithStore(store persistence.CheckpointStore) Option {
	return func(o *options) { o.store = store }
}

// WithTracer adds a tracer.
func WithTracer(t workflow.Tracer) Option {
	return func(o *options) { o.tracers = append(o.tracers, t) }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates an engine over the given agents.
func New(opts ...Option) (*workflow.Engine, error) {
	o := &options{config: workflow.DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}
	if len(o.agents) == 0 && len(o.definitions) == 0 {
		return nil, errors.New("at least one agent is required: use WithAgents or WithDefinitions")
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	registry := agent.NewRegistry(o.logger)
	for _, a := range o.agents {
		if err := registry.RegisterAgent(a); err != nil {
			return nil, err
		}
	}
	if err := agent.NewKinds(o.logger).RegisterDefinitions(registry, o.definitions); err != nil {
		return nil, err
	}

	engineOpts := []workflow.Option{workflow.WithLogger(o.logger)}
	if o.store != nil {
		engineOpts = append(engineOpts, workflow.WithStore(o.store))
	}
	if len(o.tracers) > 0 {
		engineOpts = append(engineOpts, workflow.WithTracer(o.tracers...))
	}
	return workflow.NewEngine(registry, o.config, engineOpts...)
}
