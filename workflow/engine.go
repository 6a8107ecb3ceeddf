package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/agent/persistence"
	"github.com/BaSui01/agentrelay/internal/tokenizer"
	"github.com/BaSui01/agentrelay/types"
)

// DefaultMaxSteps bounds the number of turns of one session.
const DefaultMaxSteps = 50

// Config is the session configuration.
type Config struct {
	// InitialAgent is the preferred entry agent.
	InitialAgent string `json:"initial_agent" yaml:"initial_agent"`

	// PersistDirectory enables the file checkpoint store when no store is
	// injected. Empty keeps checkpoints in memory.
	PersistDirectory string `json:"persist_directory" yaml:"persist_directory"`

	// MaxSteps caps the number of turns; <= 0 means DefaultMaxSteps.
	MaxSteps int `json:"max_steps" yaml:"max_steps"`

	// SummaryTokenizer is the encoding used for step summaries.
	SummaryTokenizer string `json:"summary_tokenizer" yaml:"summary_tokenizer"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxSteps:         DefaultMaxSteps,
		SummaryTokenizer: tokenizer.EncodingEstimator,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore injects the checkpoint store. The engine does not close
// injected stores.
func WithStore(store persistence.CheckpointStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithTracer sets the tracer. Several tracers are combined with MultiTracer.
func WithTracer(tracers ...Tracer) Option {
	return func(e *Engine) {
		switch len(tracers) {
		case 0:
		case 1:
			e.tracer = tracers[0]
		default:
			e.tracer = MultiTracer(tracers)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxSteps overrides Config.MaxSteps.
func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.cfg.MaxSteps = n }
}

// WithInitialAgent overrides Config.InitialAgent.
func WithInitialAgent(name string) Option {
	return func(e *Engine) { e.cfg.InitialAgent = name }
}

// WithThreadIDGenerator replaces the uuid thread id generator.
func WithThreadIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newThreadID = fn
		}
	}
}

// WithSummarizer replaces the step summarizer.
func WithSummarizer(s *Summarizer) Option {
	return func(e *Engine) {
		if s != nil {
			e.summarizer = s
		}
	}
}

// Engine runs sessions over the graph compiled from its registry.
//
// An Engine is safe for concurrent use: each Run or Stream owns its state,
// and the registry and store are shared.
type Engine struct {
	cfg         Config
	registry    *agent.Registry
	router      *Router
	builder     *Builder
	store       persistence.CheckpointStore
	ownsStore   bool
	tracer      Tracer
	summarizer  *Summarizer
	newThreadID func() string
	logger      *zap.Logger
}

// NewEngine creates an engine over registry. A nil registry starts empty.
func NewEngine(registry *agent.Registry, cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:         cfg,
		registry:    registry,
		tracer:      NopTracer{},
		newThreadID: uuid.NewString,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.MaxSteps <= 0 {
		e.cfg.MaxSteps = DefaultMaxSteps
	}
	if e.registry == nil {
		e.registry = agent.NewRegistry(e.logger)
	}
	if e.summarizer == nil {
		e.summarizer = NewSummarizer(e.cfg.SummaryTokenizer)
	}
	if e.store == nil {
		store, err := e.defaultStore()
		if err != nil {
			return nil, err
		}
		e.store = store
		e.ownsStore = true
	}

	e.router = NewRouter(RouterConfig{InitialAgent: e.cfg.InitialAgent}, e.logger)
	e.builder = NewBuilder(e.registry, e.router, e.logger)
	e.logger = e.logger.With(zap.String("component", "engine"))
	return e, nil
}

func (e *Engine) defaultStore() (persistence.CheckpointStore, error) {
	if e.cfg.PersistDirectory == "" {
		return persistence.NewMemoryStore(), nil
	}
	store, err := persistence.NewFileStore(e.cfg.PersistDirectory)
	if err != nil {
		return nil, types.NewConfigurationError(
			fmt.Sprintf("cannot use persist directory %q", e.cfg.PersistDirectory)).WithCause(err)
	}
	return store, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Registry returns the engine's agent registry.
func (e *Engine) Registry() *agent.Registry { return e.registry }

// Store returns the checkpoint store.
func (e *Engine) Store() persistence.CheckpointStore { return e.store }

// Graph returns the compiled graph, recompiling when the registry changed.
func (e *Engine) Graph(ctx context.Context) (*Graph, error) {
	return e.builder.Graph(ctx)
}

// Validate performs the strict startup check: an engine without agents is a
// configuration error here, although Run on an empty registry degrades to an
// error state instead of failing.
func (e *Engine) Validate(ctx context.Context) error {
	if e.registry.Len() == 0 {
		return types.NewConfigurationError("no agents registered")
	}
	if e.cfg.InitialAgent != "" && !e.registry.Has(e.cfg.InitialAgent) {
		e.logger.Warn("initial agent is not registered, default entry will be used",
			zap.String("initial_agent", e.cfg.InitialAgent))
	}
	g, err := e.Graph(ctx)
	if err != nil {
		return err
	}
	for _, name := range g.Substitutions() {
		n, _ := g.Node(name)
		e.logger.Warn("agent runs as passthrough",
			zap.String("agent", name),
			zap.String("reason", n.Reason))
	}
	return nil
}

// Run drives one session synchronously to a terminal state and returns the
// final state. Agent failures end in a state with status error; the returned
// error is only set when the graph cannot be compiled.
func (e *Engine) Run(ctx context.Context, input string) (*agent.WorkflowState, error) {
	g, err := e.Graph(ctx)
	if err != nil {
		return nil, err
	}
	s := e.newSession(ctx, g, input)
	s.start()
	if s.done {
		s.checkpoint()
	}
	for !s.done {
		s.step()
	}
	return s.state, nil
}

// Stream prepares a lazy session over input. Nothing runs until the first
// pull from States; the thread id is allocated immediately.
func (e *Engine) Stream(ctx context.Context, input string) (*Stream, error) {
	g, err := e.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return &Stream{session: e.newSession(ctx, g, input)}, nil
}

// RunBatch runs independent sessions with at most concurrency in flight.
// Results keep the order of inputs.
func (e *Engine) RunBatch(ctx context.Context, inputs []string, concurrency int) ([]*agent.WorkflowState, error) {
	if _, err := e.Graph(ctx); err != nil {
		return nil, err
	}
	results := make([]*agent.WorkflowState, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, input := range inputs {
		g.Go(func() error {
			state, err := e.Run(gctx, input)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			results[i] = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// LoadHistory returns the checkpoints of threadID in step order.
func (e *Engine) LoadHistory(ctx context.Context, threadID string) ([]*agent.WorkflowState, error) {
	return e.store.LoadHistory(ctx, threadID)
}

// ListThreads lists persisted sessions.
func (e *Engine) ListThreads(ctx context.Context) ([]persistence.ThreadInfo, error) {
	return e.store.ListThreads(ctx)
}

// DeleteThread removes every checkpoint of threadID.
func (e *Engine) DeleteThread(ctx context.Context, threadID string) error {
	return e.store.DeleteThread(ctx, threadID)
}

// Close releases the checkpoint store when the engine created it.
func (e *Engine) Close() error {
	if e.ownsStore {
		return e.store.Close()
	}
	return nil
}

func (e *Engine) newSession(ctx context.Context, g *Graph, input string) *session {
	state := agent.NewWorkflowState(input)
	state.ThreadID = e.newThreadID()
	return &session{
		engine:   e,
		ctx:      ctx,
		graph:    g,
		names:    g.Names(),
		standIns: g.Substitutions(),
		state:    state,
		logger:   e.logger.With(zap.String("thread_id", state.ThreadID)),
	}
}

// trace invokes a tracer callback, logging and counting failures.
func (e *Engine) trace(ctx context.Context, event string, fn func() error) {
	if err := callTracer(fn); err != nil {
		e.logger.Warn("tracer failed", zap.String("event", event), zap.Error(err))
		e.sideChannel(ctx, types.ErrTracing, err)
	}
}

func (e *Engine) sideChannel(ctx context.Context, code types.ErrorCode, err error) {
	if o, ok := e.tracer.(SideChannelObserver); ok {
		_ = callTracer(func() error { o.OnSideChannelError(ctx, code, err); return nil })
	}
}
