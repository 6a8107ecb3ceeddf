// 配置热重载。
//
// 监听配置文件，重新加载并校验后通知回调；回调失败时回滚到旧配置。
// 只有 agents 段可以在运行时生效，其余段的变更会记录为需要重启。
package config

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentrelay/agent"
)

// ReloadCallback is invoked after a new configuration has been accepted.
// Returning an error rolls the reload back.
type ReloadCallback func(oldConfig, newConfig *Config) error

// Snapshot records one applied configuration version.
type Snapshot struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Checksum  string    `json:"checksum"`
}

// Reloader keeps the current configuration and applies file changes.
type Reloader struct {
	mu sync.RWMutex

	loader     *Loader
	current    *Config
	history    []Snapshot
	maxHistory int
	callbacks  []ReloadCallback

	watcher     *FileWatcher
	watcherOpts []WatcherOption
	logger      *zap.Logger
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

// WithReloaderLogger sets the logger.
func WithReloaderLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxHistorySize bounds the number of kept snapshots.
func WithMaxHistorySize(size int) ReloaderOption {
	return func(r *Reloader) {
		if size > 0 {
			r.maxHistory = size
		}
	}
}

// WithWatcherOptions passes options through to the file watcher.
func WithWatcherOptions(opts ...WatcherOption) ReloaderOption {
	return func(r *Reloader) {
		r.watcherOpts = append(r.watcherOpts, opts...)
	}
}

// NewReloader creates a reloader that starts from initial.
func NewReloader(loader *Loader, initial *Config, opts ...ReloaderOption) *Reloader {
	r := &Reloader{
		loader:     loader,
		current:    initial,
		maxHistory: 10,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.pushHistory(initial, "init")
	return r
}

// OnReload registers a callback.
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Start watches the loader's config file. It is a no-op when the loader has
// no file.
func (r *Reloader) Start(ctx context.Context) error {
	path := r.loader.ConfigPath()
	if path == "" {
		return nil
	}

	opts := append([]WatcherOption{
		WithWatcherLogger(r.logger),
		WithDebounceDelay(500 * time.Millisecond),
	}, r.watcherOpts...)
	w, err := NewFileWatcher([]string{path}, opts...)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.OnChange(func(ev FileEvent) {
		if ev.Op == FileOpRemove {
			r.logger.Warn("config file removed, keeping current config", zap.String("path", ev.Path))
			return
		}
		if err := r.Reload("file"); err != nil {
			r.logger.Error("config reload failed", zap.Error(err))
		}
	})
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()
	return nil
}

// Stop stops watching.
func (r *Reloader) Stop() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

// Reload loads, validates and applies the configuration. An invalid file
// leaves the current configuration in place.
func (r *Reloader) Reload(source string) error {
	next, err := r.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return r.Apply(next, source)
}

// Apply installs next and notifies callbacks. If a callback fails the
// previous configuration is restored and callbacks are replayed in reverse.
func (r *Reloader) Apply(next *Config, source string) error {
	r.mu.Lock()
	prev := r.current
	r.current = next
	callbacks := append([]ReloadCallback(nil), r.callbacks...)
	r.mu.Unlock()

	if restart := restartSections(prev, next); len(restart) > 0 {
		r.logger.Warn("configuration changes require restart to take effect",
			zap.Strings("sections", restart))
	}

	if err := notify(callbacks, prev, next); err != nil {
		r.mu.Lock()
		if r.current == next {
			r.current = prev
		}
		r.mu.Unlock()
		if rbErr := notify(callbacks, next, prev); rbErr != nil {
			r.logger.Error("rollback callbacks failed", zap.Error(rbErr))
		}
		r.logger.Error("config callback failed, rolled back",
			zap.String("source", source), zap.Error(err))
		return fmt.Errorf("config applied but callback failed: %w", err)
	}

	r.mu.Lock()
	r.pushHistory(next, source)
	version := r.history[len(r.history)-1].Version
	r.mu.Unlock()

	r.logger.Info("configuration reloaded",
		zap.String("source", source),
		zap.Int("version", version),
		zap.Int("agents", len(next.Agents)))
	return nil
}

func notify(callbacks []ReloadCallback, prev, next *Config) error {
	var errs []error
	for _, cb := range callbacks {
		errs = append(errs, safeCallback(cb, prev, next))
	}
	return errors.Join(errs...)
}

func safeCallback(cb ReloadCallback, prev, next *Config) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("callback panicked: %v", rec)
		}
	}()
	return cb(prev, next)
}

// restartSections lists top-level sections other than agents that changed.
func restartSections(prev, next *Config) []string {
	var out []string
	pv, nv := reflect.ValueOf(prev).Elem(), reflect.ValueOf(next).Elem()
	t := pv.Type()
	for i := 0; i < t.NumField(); i++ {
		name := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if name == "agents" {
			continue
		}
		if !reflect.DeepEqual(pv.Field(i).Interface(), nv.Field(i).Interface()) {
			out = append(out, name)
		}
	}
	return out
}

func (r *Reloader) pushHistory(cfg *Config, source string) {
	version := 1
	if n := len(r.history); n > 0 {
		version = r.history[n-1].Version + 1
	}
	r.history = append(r.history, Snapshot{
		Version:   version,
		Timestamp: time.Now(),
		Source:    source,
		Checksum:  checksum(cfg),
	})
	if len(r.history) > r.maxHistory {
		r.history = r.history[len(r.history)-r.maxHistory:]
	}
}

func checksum(cfg *Config) string {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := fnv.New64a()
	h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Current returns the active configuration.
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// History returns applied snapshots, oldest first.
func (r *Reloader) History() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Snapshot(nil), r.history...)
}

// SanitizedConfig 返回敏感字段脱敏后的配置视图
func (r *Reloader) SanitizedConfig() map[string]any {
	return Sanitize(r.Current())
}

// Sanitize renders cfg as a map with secrets redacted.
func Sanitize(cfg *Config) map[string]any {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil
	}
	redactSensitiveFields(result)
	return result
}

var sensitiveKeys = []string{"password", "api_key", "apikey", "secret", "token", "credential"}

// redactSensitiveFields 递归地脱敏敏感字段
func redactSensitiveFields(data map[string]any) {
	for key, value := range data {
		lower := strings.ToLower(key)
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				if str, ok := value.(string); ok && str != "" {
					data[key] = "[REDACTED]"
				}
				break
			}
		}
		if nested, ok := value.(map[string]any); ok {
			redactSensitiveFields(nested)
		}
	}
	if uri, ok := data["uri"].(string); ok && strings.Contains(uri, "@") {
		data["uri"] = "[REDACTED]"
	}
}

// SyncAgents returns a callback that keeps the declarative agents in
// registry in step with the configuration.
func SyncAgents(kinds *agent.Kinds, registry *agent.Registry, logger *zap.Logger) ReloadCallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(oldConfig, newConfig *Config) error {
		if reflect.DeepEqual(oldConfig.Agents, newConfig.Agents) {
			return nil
		}
		added, removed := kinds.Sync(registry, oldConfig.Agents, newConfig.Agents)
		logger.Info("declarative agents synced",
			zap.Strings("added", added),
			zap.Strings("removed", removed),
			zap.Int("total", registry.Len()))
		return nil
	}
}
