// Package persistence provides checkpoint storage for agentrelay sessions.
//
// Every turn of a session is saved as an immutable snapshot keyed by
// (thread id, step). LoadHistory replays the snapshots of one thread in step
// order, which is what time-travel debugging and the history API use.
//
// Supported backends:
// - Memory: For development and testing (default)
// - File: One JSON document per thread, for single-node deployments
// - Redis: For distributed deployments
// - SQL: gorm (postgres, mysql, sqlite)
// - Mongo: MongoDB collection
package persistence

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BaSui01/agentrelay/agent"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
	StoreTypeMongo  StoreType = "mongo"
)

// StoreConfig is the base configuration for all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the directory for file-based storage
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// KeyPrefix prefixes Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// Table is the SQL table name
	Table string `json:"table" yaml:"table"`

	// Collection is the Mongo collection name
	Collection string `json:"collection" yaml:"collection"`

	// Redis configuration (only used when Type is "redis" and no client is injected)
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:       StoreTypeMemory,
		BaseDir:    "./data/checkpoints",
		KeyPrefix:  "agentrelay:",
		Table:      "checkpoints",
		Collection: "checkpoints",
		Redis: RedisStoreConfig{
			Host:     "localhost",
			Port:     6379,
			DB:       0,
			PoolSize: 10,
		},
	}
}

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// CheckpointStore persists per-turn session snapshots.
type CheckpointStore interface {
	Store

	// Save stores state as the checkpoint (threadID, step). Saving the same
	// key twice replaces the earlier snapshot.
	Save(ctx context.Context, threadID string, step int, state *agent.WorkflowState) error

	// LoadHistory returns the snapshots of threadID ordered by step.
	// Unknown threads return ErrNotFound.
	LoadHistory(ctx context.Context, threadID string) ([]*agent.WorkflowState, error)

	// ListThreads lists known threads, most recently updated first.
	ListThreads(ctx context.Context) ([]ThreadInfo, error)

	// DeleteThread removes every checkpoint of threadID.
	DeleteThread(ctx context.Context, threadID string) error
}

// ThreadInfo summarizes one persisted session.
type ThreadInfo struct {
	ThreadID  string       `json:"thread_id"`
	Status    agent.Status `json:"status"`
	Steps     int          `json:"steps"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// validateKey rejects keys that cannot be stored safely by every backend.
func validateKey(threadID string, step int) error {
	if err := validateThreadID(threadID); err != nil {
		return err
	}
	if step < 0 {
		return fmt.Errorf("%w: negative step %d", ErrInvalidInput, step)
	}
	return nil
}

func validateThreadID(threadID string) error {
	if threadID == "" {
		return fmt.Errorf("%w: empty thread id", ErrInvalidInput)
	}
	if strings.ContainsAny(threadID, `/\:`) || strings.Contains(threadID, "..") {
		return fmt.Errorf("%w: thread id %q contains path characters", ErrInvalidInput, threadID)
	}
	return nil
}

// encodeState serializes a snapshot for storage.
func encodeState(state *agent.WorkflowState) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: nil state", ErrInvalidInput)
	}
	data, err := state.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return data, nil
}

// sortThreads orders thread summaries most recent first, then by id.
func sortThreads(infos []ThreadInfo) {
	slices.SortFunc(infos, func(a, b ThreadInfo) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ThreadID, b.ThreadID)
	})
}

func unixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
