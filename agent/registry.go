package agent

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// entry holds either a constructed agent or a factory that builds one at
// compile time.
type entry struct {
	name    string
	agent   Agent
	factory Factory
}

// Registry holds named agents in registration order. The order is the
// deterministic fallback chain used by the router, so it is never sorted.
//
// Every mutation bumps Version; compiled graphs compare it to decide whether
// they are stale.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	version uint64
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger.With(zap.String("component", "agent_registry")),
	}
}

// Register adds a constructed agent under name.
func (r *Registry) Register(name string, a Agent) error {
	if a == nil {
		return ErrNilAgent
	}
	return r.add(&entry{name: name, agent: a})
}

// RegisterAgent registers a under its own name.
func (r *Registry) RegisterAgent(a Agent) error {
	if a == nil {
		return ErrNilAgent
	}
	return r.Register(a.Name(), a)
}

// RegisterFactory adds an agent built lazily at compile time. A factory
// error makes the graph substitute a passthrough node for name.
func (r *Registry) RegisterFactory(name string, f Factory) error {
	if f == nil {
		return ErrNilAgent
	}
	return r.add(&entry{name: name, factory: f})
}

func (r *Registry) add(e *entry) error {
	if e.name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.name]; exists {
		return duplicateNameError(e.name)
	}
	r.entries[e.name] = e
	r.order = append(r.order, e.name)
	r.version++

	r.logger.Debug("agent registered",
		zap.String("agent", e.name),
		zap.Bool("lazy", e.factory != nil),
	)
	return nil
}

// Unregister removes name. Removing an unknown agent returns NotFound.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		return notFoundError(name)
	}
	delete(r.entries, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	r.version++

	r.logger.Debug("agent unregistered", zap.String("agent", name))
	return nil
}

// Replace swaps the agent registered under name, registering it if absent.
// Used by config reloads.
func (r *Registry) Replace(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = &entry{name: name, factory: f}
	r.version++
}

// Get returns the agent registered under name. Agents registered through a
// factory are only built by the graph builder, so Get reports ErrLazyAgent
// for them.
func (r *Registry) Get(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, notFoundError(name)
	}
	if e.agent == nil {
		return nil, fmt.Errorf("%w: %s", ErrLazyAgent, name)
	}
	return e.agent, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// List returns registered names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Version returns a counter bumped by every mutation.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Snapshot is a consistent view of the registry used for compilation.
type Snapshot struct {
	Version uint64
	Names   []string
	entries map[string]*entry
}

// Snapshot captures the registry contents under one read lock.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make(map[string]*entry, len(r.entries))
	for k, v := range r.entries {
		cp := *v
		entries[k] = &cp
	}
	return Snapshot{Version: r.version, Names: slices.Clone(r.order), entries: entries}
}

// Has reports whether name was registered when the snapshot was taken.
func (s Snapshot) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Agent returns the constructed agent or the factory registered for name.
func (s Snapshot) Agent(name string) (a Agent, f Factory, ok bool) {
	e, ok := s.entries[name]
	if !ok {
		return nil, nil, false
	}
	return e.agent, e.factory, true
}
