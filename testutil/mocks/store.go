// =============================================================================
// 💾 MockCheckpointStore - Checkpoint 存储模拟实现
// =============================================================================
// 包装内存存储，支持错误注入与调用记录
//
// 使用方法:
//
//	store := mocks.NewMockCheckpointStore().WithSaveError(errors.New("disk full"))
//	engine, _ := workflow.NewEngine(registry, cfg, workflow.WithStore(store))
//
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/agent/persistence"
)

// SaveCall 记录一次 Save 调用
type SaveCall struct {
	ThreadID string
	Step     int
	Status   agent.Status
}

// MockCheckpointStore 是 CheckpointStore 的模拟实现
type MockCheckpointStore struct {
	mu    sync.Mutex
	inner *persistence.MemoryStore

	// 错误注入
	saveErr   error
	loadErr   error
	listErr   error
	deleteErr error
	pingErr   error
	savePanic any

	// 调用记录
	saves []SaveCall
}

// NewMockCheckpointStore 创建新的 MockCheckpointStore
func NewMockCheckpointStore() *MockCheckpointStore {
	return &MockCheckpointStore{inner: persistence.NewMemoryStore()}
}

// WithSaveError 设置 Save 方法的错误
func (m *MockCheckpointStore) WithSaveError(err error) *MockCheckpointStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// WithSavePanic 让 Save panic
func (m *MockCheckpointStore) WithSavePanic(v any) *MockCheckpointStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.savePanic = v
	return m
}

// WithLoadError 设置 LoadHistory 方法的错误
func (m *MockCheckpointStore) WithLoadError(err error) *MockCheckpointStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
	return m
}

// WithListError 设置 ListThreads 方法的错误
func (m *MockCheckpointStore) WithListError(err error) *MockCheckpointStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
	return m
}

// WithDeleteError 设置 DeleteThread 方法的错误
func (m *MockCheckpointStore) WithDeleteError(err error) *MockCheckpointStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
	return m
}

// WithPingError 设置 Ping 方法的错误
func (m *MockCheckpointStore) WithPingError(err error) *MockCheckpointStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// Saves 返回 Save 调用记录（包括失败的调用）
func (m *MockCheckpointStore) Saves() []SaveCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SaveCall(nil), m.saves...)
}

func (m *MockCheckpointStore) Save(ctx context.Context, threadID string, step int, state *agent.WorkflowState) error {
	m.mu.Lock()
	m.saves = append(m.saves, SaveCall{ThreadID: threadID, Step: step, Status: state.Status})
	err, p := m.saveErr, m.savePanic
	m.mu.Unlock()

	if p != nil {
		panic(p)
	}
	if err != nil {
		return err
	}
	return m.inner.Save(ctx, threadID, step, state)
}

func (m *MockCheckpointStore) LoadHistory(ctx context.Context, threadID string) ([]*agent.WorkflowState, error) {
	m.mu.Lock()
	err := m.loadErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.LoadHistory(ctx, threadID)
}

func (m *MockCheckpointStore) ListThreads(ctx context.Context) ([]persistence.ThreadInfo, error) {
	m.mu.Lock()
	err := m.listErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.ListThreads(ctx)
}

func (m *MockCheckpointStore) DeleteThread(ctx context.Context, threadID string) error {
	m.mu.Lock()
	err := m.deleteErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.DeleteThread(ctx, threadID)
}

func (m *MockCheckpointStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	err := m.pingErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Ping(ctx)
}

func (m *MockCheckpointStore) Close() error { return m.inner.Close() }

var _ persistence.CheckpointStore = (*MockCheckpointStore)(nil)
