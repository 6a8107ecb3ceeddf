// 配置文件变更监听器实现。
//
// 优先使用 fsnotify 监听所在目录，失败或显式要求时退回到轮询。
// 防抖和分发都在同一个 goroutine 中完成。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// --- 文件监听器类型定义 ---

// FileWatcher watches configuration files for changes.
type FileWatcher struct {
	mu sync.RWMutex

	// 配置
	paths         []string
	debounceDelay time.Duration
	pollInterval  time.Duration
	forcePoll     bool

	// 状态
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// 回调
	callbacks []func(event FileEvent)

	logger *zap.Logger

	// 轮询模式下的最后修改时间，仅由监听 goroutine 访问
	lastModTimes map[string]time.Time
}

// FileEvent represents a file change event.
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileOp represents file operation types.
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 指示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
	// FileOpRename 表示文件已重命名
	FileOpRename
)

// String returns the string representation of FileOp.
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	case FileOpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// --- 文件监听器选项 ---

// WatcherOption configures the FileWatcher.
type WatcherOption func(*FileWatcher)

// WithDebounceDelay sets the debounce delay for file events.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithPolling disables fsnotify and checks modification times every interval.
func WithPolling(interval time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.forcePoll = true
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 文件监听器实现 ---

// NewFileWatcher creates a new file watcher. Missing files are allowed and
// reported as created once they appear.
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		debounceDelay: 100 * time.Millisecond,
		pollInterval:  time.Second,
		lastModTimes:  make(map[string]time.Time),
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(w)
	}

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
		}
		if _, err := os.Stat(abs); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to stat path %s: %w", abs, err)
			}
			w.logger.Warn("config file does not exist, will watch for creation",
				zap.String("path", abs))
		}
		if !slices.Contains(w.paths, abs) {
			w.paths = append(w.paths, abs)
		}
	}

	return w, nil
}

// OnChange registers a callback for file change events.
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching. The watcher stops when ctx is done or Stop is called.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("watcher already running")
	}

	events := make(chan FileEvent, 16)
	ctx, cancel := context.WithCancel(ctx)

	var source func()
	mode := "fsnotify"
	if !w.forcePoll {
		fsw, err := w.newNotifier()
		if err != nil {
			w.logger.Warn("fsnotify unavailable, falling back to polling", zap.Error(err))
		} else {
			source = func() { w.notifyLoop(ctx, fsw, events) }
		}
	}
	if source == nil {
		mode = "poll"
		for _, path := range w.paths {
			if info, err := os.Stat(path); err == nil {
				w.lastModTimes[path] = info.ModTime()
			}
		}
		paths := slices.Clone(w.paths)
		source = func() { w.pollLoop(ctx, paths, events) }
	}

	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(events)
		source()
	}()
	go w.dispatchLoop(events, w.done)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.paths),
		zap.String("mode", mode),
		zap.Duration("debounce_delay", w.debounceDelay))

	return nil
}

// Stop stops the watcher and waits for pending dispatches to finish.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("file watcher stopped")
	return nil
}

func (w *FileWatcher) newNotifier() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dirs := make(map[string]bool)
	for _, path := range w.paths {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return fsw, nil
}

// notifyLoop translates fsnotify events for watched files. Directories are
// watched so that editors replacing the file by rename are still seen.
func (w *FileWatcher) notifyLoop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- FileEvent) {
	defer fsw.Close()

	watched := make(map[string]bool, len(w.paths))
	for _, p := range w.paths {
		watched[p] = true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			path := filepath.Clean(ev.Name)
			if !watched[path] {
				continue
			}
			op, ok := mapFsnotifyOp(ev.Op)
			if !ok {
				continue
			}
			select {
			case out <- FileEvent{Path: path, Op: op, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func mapFsnotifyOp(op fsnotify.Op) (FileOp, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return FileOpCreate, true
	case op.Has(fsnotify.Write):
		return FileOpWrite, true
	case op.Has(fsnotify.Remove):
		return FileOpRemove, true
	case op.Has(fsnotify.Rename):
		return FileOpRename, true
	default:
		return 0, false
	}
}

// pollLoop polls files for changes (fallback for systems without fsnotify).
func (w *FileWatcher) pollLoop(ctx context.Context, paths []string, out chan<- FileEvent) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ev := range w.checkFiles(paths) {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// checkFiles compares modification times against the last poll.
func (w *FileWatcher) checkFiles(paths []string) []FileEvent {
	var events []FileEvent
	now := time.Now()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if _, existed := w.lastModTimes[path]; existed {
					delete(w.lastModTimes, path)
					events = append(events, FileEvent{Path: path, Op: FileOpRemove, Timestamp: now})
				}
			}
			continue
		}

		lastMod, existed := w.lastModTimes[path]
		switch {
		case !existed:
			w.lastModTimes[path] = info.ModTime()
			events = append(events, FileEvent{Path: path, Op: FileOpCreate, Timestamp: now})
		case info.ModTime().After(lastMod):
			w.lastModTimes[path] = info.ModTime()
			events = append(events, FileEvent{Path: path, Op: FileOpWrite, Timestamp: now})
		}
	}
	return events
}

// dispatchLoop coalesces events per path and dispatches them once the
// debounce delay has passed without new events.
func (w *FileWatcher) dispatchLoop(events <-chan FileEvent, done chan<- struct{}) {
	defer close(done)

	pending := make(map[string]FileEvent)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			pending[ev.Path] = ev
			timer.Reset(w.debounceDelay)
		case <-timer.C:
			w.dispatch(pending)
			pending = make(map[string]FileEvent)
		}
	}
}

func (w *FileWatcher) dispatch(pending map[string]FileEvent) {
	w.mu.RLock()
	callbacks := slices.Clone(w.callbacks)
	w.mu.RUnlock()

	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	for _, p := range paths {
		evt := pending[p]
		w.logger.Debug("dispatching file event",
			zap.String("path", p),
			zap.String("op", evt.Op.String()))
		for _, cb := range callbacks {
			cb(evt)
		}
	}
}

// Paths returns the list of watched paths.
func (w *FileWatcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.paths)
}

// IsRunning returns whether the watcher is running.
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
