package persistence

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/BaSui01/agentrelay/agent"
)

type memoryThread struct {
	steps     map[int][]byte
	status    agent.Status
	updatedAt time.Time
}

// MemoryStore is an in-memory implementation of CheckpointStore.
// Suitable for development and testing.
type MemoryStore struct {
	threads map[string]*memoryThread
	mu      sync.RWMutex
	closed  bool
}

// NewMemoryStore creates a new in-memory checkpoint store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]*memoryThread)}
}

// Close closes the store
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save stores one checkpoint. Snapshots are kept serialized so that later
// mutation of the caller's state cannot leak into history.
func (s *MemoryStore) Save(ctx context.Context, threadID string, step int, state *agent.WorkflowState) error {
	if err := validateKey(threadID, step); err != nil {
		return err
	}
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	t, ok := s.threads[threadID]
	if !ok {
		t = &memoryThread{steps: make(map[int][]byte)}
		s.threads[threadID] = t
	}
	t.steps[step] = data
	if step >= maxKey(t.steps) {
		t.status = state.Status
	}
	t.updatedAt = time.Now()
	return nil
}

// LoadHistory returns the checkpoints of threadID in step order
func (s *MemoryStore) LoadHistory(ctx context.Context, threadID string) ([]*agent.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	t, ok := s.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}

	steps := make([]int, 0, len(t.steps))
	for step := range t.steps {
		steps = append(steps, step)
	}
	slices.Sort(steps)

	history := make([]*agent.WorkflowState, 0, len(steps))
	for _, step := range steps {
		st, err := agent.UnmarshalState(t.steps[step])
		if err != nil {
			return nil, err
		}
		history = append(history, st)
	}
	return history, nil
}

// ListThreads lists stored threads
func (s *MemoryStore) ListThreads(ctx context.Context) ([]ThreadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]ThreadInfo, 0, len(s.threads))
	for id, t := range s.threads {
		infos = append(infos, ThreadInfo{
			ThreadID:  id,
			Status:    t.status,
			Steps:     len(t.steps),
			UpdatedAt: t.updatedAt,
		})
	}
	sortThreads(infos)
	return infos, nil
}

// DeleteThread removes a thread
func (s *MemoryStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.threads[threadID]; !ok {
		return ErrNotFound
	}
	delete(s.threads, threadID)
	return nil
}

func maxKey(m map[int][]byte) int {
	best := -1
	for k := range m {
		if k > best {
			best = k
		}
	}
	return best
}
