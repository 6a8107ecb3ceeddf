package agent

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/types"
)

// Kind identifies a declarative agent implementation.
type Kind string

const (
	KindScript      Kind = "script"
	KindEcho        Kind = "echo"
	KindPassthrough Kind = "passthrough"
)

// Definition describes an agent declared in configuration.
type Definition struct {
	Name        string         `yaml:"name" json:"name"`
	Kind        Kind           `yaml:"kind" json:"kind"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Targets     []string       `yaml:"targets,omitempty" json:"targets,omitempty"`
	Options     map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// KindBuilder creates an agent from its definition.
type KindBuilder func(def Definition, logger *zap.Logger) (Agent, error)

// Kinds maps declarative kinds to builders.
type Kinds struct {
	mu       sync.RWMutex
	builders map[Kind]KindBuilder
	logger   *zap.Logger
}

// NewKinds creates a kind table with the built-in kinds registered.
func NewKinds(logger *zap.Logger) *Kinds {
	if logger == nil {
		logger = zap.NewNop()
	}
	k := &Kinds{
		builders: make(map[Kind]KindBuilder),
		logger:   logger,
	}
	k.registerBuiltinKinds()
	return k
}

func (k *Kinds) registerBuiltinKinds() {
	k.Register(KindScript, newScriptAgent)
	k.Register(KindEcho, newEchoAgent)
	k.Register(KindPassthrough, func(def Definition, _ *zap.Logger) (Agent, error) {
		return NewPassthroughAgent(def.Name, "declared passthrough"), nil
	})
}

// Register adds or replaces the builder for kind.
func (k *Kinds) Register(kind Kind, b KindBuilder) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.builders[kind] = b
}

// Kinds returns the registered kind names, sorted.
func (k *Kinds) Kinds() []Kind {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]Kind, 0, len(k.builders))
	for kind := range k.builders {
		out = append(out, kind)
	}
	slices.Sort(out)
	return out
}

// Build constructs the agent for def.
func (k *Kinds) Build(def Definition) (Agent, error) {
	k.mu.RLock()
	b, ok := k.builders[def.Kind]
	k.mu.RUnlock()
	if !ok {
		return nil, types.NewConfigurationError(fmt.Sprintf("unknown agent kind %q", def.Kind)).
			WithAgent(def.Name)
	}
	return b(def, k.logger.With(zap.String("agent", def.Name)))
}

// Factory returns a lazy factory for def, so that a bad definition only
// degrades its own node at compile time.
func (k *Kinds) Factory(def Definition) Factory {
	return func(_ context.Context) (Agent, error) {
		return k.Build(def)
	}
}

// RegisterDefinitions registers every definition lazily, in order.
func (k *Kinds) RegisterDefinitions(r *Registry, defs []Definition) error {
	for _, def := range defs {
		if err := r.RegisterFactory(def.Name, k.Factory(def)); err != nil {
			return err
		}
	}
	return nil
}

// Sync moves the declarative part of r from prev to next. Definitions in next
// are registered or replaced; names only present in prev are unregistered.
// Agents registered in code are never touched unless next redeclares them.
func (k *Kinds) Sync(r *Registry, prev, next []Definition) (added, removed []string) {
	keep := make(map[string]bool, len(next))
	for _, def := range next {
		keep[def.Name] = true
		if !r.Has(def.Name) {
			added = append(added, def.Name)
		}
		r.Replace(def.Name, k.Factory(def))
	}
	for _, def := range prev {
		if keep[def.Name] {
			continue
		}
		if err := r.Unregister(def.Name); err == nil {
			removed = append(removed, def.Name)
		}
	}
	return added, removed
}

// decodeOptions decodes the free-form options map into out.
func decodeOptions(def Definition, out any) error {
	if len(def.Options) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(def.Options); err != nil {
		return types.NewConfigurationError(fmt.Sprintf("agent %q: invalid options", def.Name)).
			WithAgent(def.Name).
			WithCause(err)
	}
	return nil
}

// =============================================================================
// script
// =============================================================================

type scriptOptions struct {
	Replies []string `mapstructure:"replies"`
	Loop    bool     `mapstructure:"loop"`
}

// newScriptAgent replays a fixed list of replies, one per turn. The reply
// index is the number of messages the agent has already authored in the
// session, so concurrent sessions never share a cursor.
func newScriptAgent(def Definition, _ *zap.Logger) (Agent, error) {
	var opts scriptOptions
	if err := decodeOptions(def, &opts); err != nil {
		return nil, err
	}
	if len(opts.Replies) == 0 {
		return nil, types.NewConfigurationError(fmt.Sprintf("script agent %q has no replies", def.Name)).
			WithAgent(def.Name)
	}

	fn := func(_ context.Context, turn *Turn) error {
		n := authoredCount(turn.State, turn.Agent())
		if n >= len(opts.Replies) && !opts.Loop {
			return turn.Complete("")
		}
		turn.Say(opts.Replies[n%len(opts.Replies)])
		return nil
	}
	return NewContentAgent(def.Name, fn,
		WithTargets(def.Targets...),
		WithDescription(def.Description),
	), nil
}

func authoredCount(state *WorkflowState, name string) int {
	n := 0
	for _, m := range state.Messages {
		if m.Role == types.RoleAssistant && m.Name == name && !m.HasToolCalls() {
			n++
		}
	}
	return n
}

// =============================================================================
// echo
// =============================================================================

type echoOptions struct {
	Prefix string `mapstructure:"prefix"`
}

func newEchoAgent(def Definition, _ *zap.Logger) (Agent, error) {
	var opts echoOptions
	if err := decodeOptions(def, &opts); err != nil {
		return nil, err
	}
	fn := func(_ context.Context, turn *Turn) error {
		turn.SetArtifact(turn.Agent()+".echo", turn.State.TaskDescription)
		return turn.Complete(opts.Prefix + turn.State.TaskDescription)
	}
	return NewContentAgent(def.Name, fn,
		WithTargets(def.Targets...),
		WithDescription(def.Description),
	), nil
}
