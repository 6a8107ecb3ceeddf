package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
)

// threadDocument is the on-disk layout: one JSON document per thread. The
// top-level fields mirror the latest checkpoint so the file reads as the
// final state of the session; Checkpoints keeps every step for replay.
type threadDocument struct {
	ThreadID    string           `json:"thread_id"`
	Status      agent.Status     `json:"status"`
	Messages    []types.Message  `json:"messages"`
	Artifacts   map[string]any   `json:"artifacts,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Checkpoints []fileCheckpoint `json:"checkpoints"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type fileCheckpoint struct {
	Step    int             `json:"step"`
	SavedAt time.Time       `json:"saved_at"`
	State   json.RawMessage `json:"state"`
}

// FileStore is a file-based implementation of CheckpointStore.
// Suitable for single-node production deployments.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

// NewFileStore creates a new file-based checkpoint store
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: empty base directory", ErrInvalidInput)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Dir returns the directory holding thread documents.
func (s *FileStore) Dir() string { return s.baseDir }

func (s *FileStore) path(threadID string) string {
	return filepath.Join(s.baseDir, threadID+".json")
}

// Close closes the store
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks that the directory is still usable
func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.baseDir)
	return err
}

// Save writes the checkpoint into the thread document
func (s *FileStore) Save(ctx context.Context, threadID string, step int, state *agent.WorkflowState) error {
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

	doc, err := s.read(threadID)
	if errors.Is(err, ErrNotFound) {
		doc = &threadDocument{ThreadID: threadID}
	} else if err != nil {
		return err
	}

	now := types.Now()
	cp := fileCheckpoint{Step: step, SavedAt: now, State: data}
	idx := slices.IndexFunc(doc.Checkpoints, func(c fileCheckpoint) bool { return c.Step == step })
	if idx >= 0 {
		doc.Checkpoints[idx] = cp
	} else {
		doc.Checkpoints = append(doc.Checkpoints, cp)
		slices.SortFunc(doc.Checkpoints, func(a, b fileCheckpoint) int { return a.Step - b.Step })
	}

	if doc.Checkpoints[len(doc.Checkpoints)-1].Step == step {
		doc.Status = state.Status
		doc.Messages = state.Messages
		doc.Artifacts = state.Artifacts
		doc.Metadata = state.Metadata
	}
	doc.UpdatedAt = now

	return s.write(doc)
}

func (s *FileStore) read(threadID string) (*threadDocument, error) {
	data, err := os.ReadFile(s.path(threadID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc threadDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode thread %s: %w", threadID, err)
	}
	return &doc, nil
}

func (s *FileStore) write(doc *threadDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file then rename
	path := s.path(doc.ThreadID)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

// LoadHistory returns the checkpoints of threadID in step order
func (s *FileStore) LoadHistory(ctx context.Context, threadID string) ([]*agent.WorkflowState, error) {
	if err := validateThreadID(threadID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	doc, err := s.read(threadID)
	if err != nil {
		return nil, err
	}
	history := make([]*agent.WorkflowState, 0, len(doc.Checkpoints))
	for _, cp := range doc.Checkpoints {
		st, err := agent.UnmarshalState(cp.State)
		if err != nil {
			return nil, err
		}
		history = append(history, st)
	}
	return history, nil
}

// ListThreads scans the directory for thread documents
func (s *FileStore) ListThreads(ctx context.Context) ([]ThreadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}

	var infos []ThreadInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		doc, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		infos = append(infos, ThreadInfo{
			ThreadID:  doc.ThreadID,
			Status:    doc.Status,
			Steps:     len(doc.Checkpoints),
			UpdatedAt: doc.UpdatedAt,
		})
	}
	sortThreads(infos)
	return infos, nil
}

// DeleteThread removes the thread document
func (s *FileStore) DeleteThread(ctx context.Context, threadID string) error {
	if err := validateThreadID(threadID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	err := os.Remove(s.path(threadID))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}
