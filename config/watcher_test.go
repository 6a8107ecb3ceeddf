package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type eventLog struct {
	mu     sync.Mutex
	events []FileEvent
}

func (l *eventLog) add(ev FileEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []FileEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FileEvent(nil), l.events...)
}

// --- Constructor ---

func TestNewFileWatcher_Defaults(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(f, []byte("key: val"), 0o644))

	w, err := NewFileWatcher([]string{f, f})
	require.NoError(t, err)

	assert.Equal(t, []string{f}, w.Paths())
	assert.False(t, w.IsRunning())
	assert.Equal(t, 100*time.Millisecond, w.debounceDelay)
	assert.False(t, w.forcePoll)
}

func TestNewFileWatcher_WithOptions(t *testing.T) {
	w, err := NewFileWatcher([]string{filepath.Join(t.TempDir(), "x.yaml")},
		WithDebounceDelay(500*time.Millisecond),
		WithPolling(50*time.Millisecond),
		WithWatcherLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, w.debounceDelay)
	assert.Equal(t, 50*time.Millisecond, w.pollInterval)
	assert.True(t, w.forcePoll)
}

func TestNewFileWatcher_NonExistentPathAllowed(t *testing.T) {
	w, err := NewFileWatcher([]string{"/nonexistent/path/config.yaml"})
	require.NoError(t, err)
	assert.Len(t, w.Paths(), 1)
}

// --- Lifecycle ---

func TestFileWatcher_Lifecycle(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(f, []byte("a"), 0o644))

	w, err := NewFileWatcher([]string{f}, WithPolling(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(context.Background()))

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop())
}

// --- 事件分发 ---

func TestFileWatcher_DetectsChanges(t *testing.T) {
	modes := map[string][]WatcherOption{
		"fsnotify": nil,
		"poll":     {WithPolling(10 * time.Millisecond)},
	}
	for name, extra := range modes {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			f := filepath.Join(dir, "test.yaml")
			require.NoError(t, os.WriteFile(f, []byte("v1"), 0o644))

			opts := append([]WatcherOption{WithDebounceDelay(20 * time.Millisecond)}, extra...)
			w, err := NewFileWatcher([]string{f}, opts...)
			require.NoError(t, err)

			var log eventLog
			w.OnChange(log.add)
			require.NoError(t, w.Start(context.Background()))
			defer w.Stop()

			// 确保修改时间前进，轮询模式依赖它
			time.Sleep(20 * time.Millisecond)
			future := time.Now().Add(time.Second)
			require.NoError(t, os.WriteFile(f, []byte("v2"), 0o644))
			require.NoError(t, os.Chtimes(f, future, future))

			assert.Eventually(t, func() bool {
				for _, ev := range log.snapshot() {
					if ev.Path == f && (ev.Op == FileOpWrite || ev.Op == FileOpCreate) {
						return true
					}
				}
				return false
			}, 3*time.Second, 10*time.Millisecond)
		})
	}
}

func TestFileWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "watched.yaml")
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(f, []byte("a"), 0o644))

	w, err := NewFileWatcher([]string{f}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)
	var log eventLog
	w.OnChange(log.add)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(other, []byte("b"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, log.snapshot())
}

func TestFileWatcher_DebounceCoalescesPerPath(t *testing.T) {
	w, err := NewFileWatcher(nil, WithDebounceDelay(30*time.Millisecond))
	require.NoError(t, err)
	var log eventLog
	w.OnChange(log.add)

	events := make(chan FileEvent)
	done := make(chan struct{})
	go w.dispatchLoop(events, done)

	events <- FileEvent{Path: "/a", Op: FileOpCreate}
	events <- FileEvent{Path: "/a", Op: FileOpWrite}
	events <- FileEvent{Path: "/b", Op: FileOpWrite}

	assert.Eventually(t, func() bool { return len(log.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	close(events)
	<-done

	got := log.snapshot()
	assert.Equal(t, "/a", got[0].Path)
	assert.Equal(t, FileOpWrite, got[0].Op)
	assert.Equal(t, "/b", got[1].Path)
}

func TestFileWatcher_PollDetectsRemoveAndCreate(t *testing.T) {
	f := filepath.Join(t.TempDir(), "x.yaml")
	w, err := NewFileWatcher([]string{f}, WithPolling(time.Hour))
	require.NoError(t, err)

	assert.Empty(t, w.checkFiles(w.Paths()))

	require.NoError(t, os.WriteFile(f, []byte("a"), 0o644))
	evs := w.checkFiles(w.Paths())
	require.Len(t, evs, 1)
	assert.Equal(t, FileOpCreate, evs[0].Op)

	require.NoError(t, os.Remove(f))
	evs = w.checkFiles(w.Paths())
	require.Len(t, evs, 1)
	assert.Equal(t, FileOpRemove, evs[0].Op)
}

func TestFileWatcher_ContextCancel(t *testing.T) {
	f := filepath.Join(t.TempDir(), "x.yaml")
	w, err := NewFileWatcher([]string{f}, WithPolling(5*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		_ = w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "RENAME", FileOpRename.String())
	assert.Equal(t, "UNKNOWN", FileOp(42).String())
}
