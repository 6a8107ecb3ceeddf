package config

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/agentrelay/agent"
)

const twoAgents = `
agents:
  - name: Planner
    kind: echo
  - name: Coder
    kind: echo
`

func newTestReloader(t *testing.T, content string, opts ...ReloaderOption) (*Reloader, string) {
	t.Helper()
	path := writeConfig(t, content)
	loader := NewLoader().WithConfigPath(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	return NewReloader(loader, cfg, opts...), path
}

func TestReloader_ReloadSyncsAgents(t *testing.T) {
	r, path := newTestReloader(t, twoAgents)
	registry := agent.NewRegistry(nil)
	kinds := agent.NewKinds(nil)
	require.NoError(t, kinds.RegisterDefinitions(registry, r.Current().Agents))
	r.OnReload(SyncAgents(kinds, registry, nil))

	require.NoError(t, os.WriteFile(path, []byte(`
agents:
  - name: Planner
    kind: echo
  - name: Reviewer
    kind: passthrough
`), 0o644))
	require.NoError(t, r.Reload("test"))

	assert.Equal(t, []string{"Planner", "Reviewer"}, registry.List())
	assert.Equal(t, "Reviewer", r.Current().Agents[1].Name)

	h := r.History()
	require.Len(t, h, 2)
	assert.Equal(t, "init", h[0].Source)
	assert.Equal(t, 2, h[1].Version)
	assert.NotEqual(t, h[0].Checksum, h[1].Checksum)
}

func TestReloader_InvalidFileKeepsCurrent(t *testing.T) {
	r, path := newTestReloader(t, twoAgents)
	before := r.Current()

	require.NoError(t, os.WriteFile(path, []byte("agents:\n  - name: X\n"), 0o644))
	err := r.Reload("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kind is required")
	assert.Same(t, before, r.Current())
	assert.Len(t, r.History(), 1)
}

func TestReloader_CallbackFailureRollsBack(t *testing.T) {
	r, _ := newTestReloader(t, twoAgents)
	before := r.Current()

	var seen [][2]int
	r.OnReload(func(o, n *Config) error {
		seen = append(seen, [2]int{len(o.Agents), len(n.Agents)})
		return nil
	})
	r.OnReload(func(o, n *Config) error {
		if len(n.Agents) == 0 {
			return errors.New("refusing empty agent list")
		}
		return nil
	})

	next := DefaultConfig()
	err := r.Apply(next, "api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing empty agent list")
	assert.Same(t, before, r.Current())
	// 先应用后回滚
	assert.Equal(t, [][2]int{{2, 0}, {0, 2}}, seen)
}

func TestReloader_CallbackPanicIsRecovered(t *testing.T) {
	r, _ := newTestReloader(t, twoAgents)
	r.OnReload(func(_, n *Config) error {
		if len(n.Agents) == 0 {
			panic("bad callback")
		}
		return nil
	})
	err := r.Apply(DefaultConfig(), "api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "callback panicked: bad callback")
}

func TestReloader_WarnsOnRestartSections(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r, _ := newTestReloader(t, twoAgents, WithReloaderLogger(zap.New(core)))

	next := *r.Current()
	next.Server.HTTPPort = 9999
	require.NoError(t, r.Apply(&next, "api"))

	entries := logs.FilterMessage("configuration changes require restart to take effect").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"server"}, entries[0].ContextMap()["sections"])
}

func TestReloader_HistoryIsBounded(t *testing.T) {
	r, _ := newTestReloader(t, "", WithMaxHistorySize(3))
	for i := 0; i < 5; i++ {
		cfg := DefaultConfig()
		cfg.Engine.MaxSteps = 10 + i
		require.NoError(t, r.Apply(cfg, "api"))
	}
	h := r.History()
	require.Len(t, h, 3)
	assert.Equal(t, 6, h[2].Version)
}

func TestReloader_WatchesFile(t *testing.T) {
	r, path := newTestReloader(t, twoAgents,
		WithWatcherOptions(WithDebounceDelay(10*time.Millisecond), WithPolling(10*time.Millisecond)))
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  - name: Solo\n    kind: echo\n"), 0o644))
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		agents := r.Current().Agents
		return len(agents) == 1 && agents[0].Name == "Solo"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSanitize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Password = "hunter2"
	cfg.JWT.Secret = "s3cret"
	cfg.Mongo.URI = "mongodb://user:pw@host:27017"

	out := Sanitize(cfg)
	db := out["database"].(map[string]any)
	assert.Equal(t, "[REDACTED]", db["password"])
	assert.Equal(t, "[REDACTED]", out["jwt"].(map[string]any)["secret"])
	assert.Equal(t, "[REDACTED]", out["mongo"].(map[string]any)["uri"])
	assert.Equal(t, "", out["redis"].(map[string]any)["password"])
	assert.Equal(t, "localhost", db["host"])
}
