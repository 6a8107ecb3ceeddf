package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentrelay/config"
)

func pong() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
}

func loopback(t *testing.T, h http.Handler) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	m := NewManager("api", h, cfg, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestConfigFrom(t *testing.T) {
	sc := config.DefaultServerConfig()
	sc.ReadTimeout = 0

	cfg, err := ConfigFrom(sc, 9091)
	require.NoError(t, err)
	assert.Equal(t, ":9091", cfg.Addr)
	assert.Equal(t, DefaultConfig().ReadTimeout, cfg.ReadTimeout, "zero keeps the default")
	assert.Equal(t, sc.WriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, sc.ShutdownTimeout, cfg.ShutdownTimeout)
	assert.Nil(t, cfg.TLS)

	// 只配一半不启用 TLS
	sc.TLSCertFile = "cert.pem"
	cfg, err = ConfigFrom(sc, 8443)
	require.NoError(t, err)
	assert.Nil(t, cfg.TLS)

	sc.TLSKeyFile = "missing-key.pem"
	_, err = ConfigFrom(sc, 8443)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load TLS key pair")
}

func TestManager_Lifecycle(t *testing.T) {
	m := loopback(t, pong())
	assert.False(t, m.IsRunning())
	assert.Equal(t, "127.0.0.1:0", m.Addr())

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	assert.NotEqual(t, "127.0.0.1:0", m.Addr())

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	assert.ErrorIs(t, m.Start(), ErrAlreadyStarted)

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
	assert.ErrorIs(t, m.Start(), ErrClosed)
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	m := loopback(t, pong())
	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorIs(t, m.Start(), ErrClosed)
}

func TestManager_ShutdownCancelsRequestContext(t *testing.T) {
	entered := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		// 模拟长连接的流式会话，只等 context 结束
		<-r.Context().Done()
	})
	m := loopback(t, handler)
	require.NoError(t, m.Start())

	go func() {
		resp, err := http.Get("http://" + m.Addr() + "/stream")
		if err == nil {
			_ = resp.Body.Close()
		}
	}()
	<-entered

	done := make(chan error, 1)
	go func() { done <- m.Shutdown(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown blocked on a long-lived request")
	}
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	m := loopback(t, pong())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, m.IsRunning, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, m.IsRunning())
}

func TestManager_ListenError(t *testing.T) {
	first := loopback(t, pong())
	require.NoError(t, first.Start())

	cfg := DefaultConfig()
	cfg.Addr = first.Addr()
	second := NewManager("metrics", pong(), cfg, nil)
	assert.Equal(t, "metrics", second.Name())

	err := second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.False(t, second.IsRunning())

	select {
	case <-second.Errors():
		t.Fatal("listen error should be returned, not sent")
	default:
	}
}

func TestNewManager_NilLogger(t *testing.T) {
	m := NewManager("api", pong(), DefaultConfig(), nil)
	assert.NotNil(t, m.logger)
	require.NoError(t, m.Shutdown(context.Background()))
}
