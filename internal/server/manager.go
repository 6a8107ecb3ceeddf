package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/config"
	"github.com/BaSui01/agentrelay/internal/tlsutil"
)

var (
	// ErrAlreadyStarted Start 被调用了第二次
	ErrAlreadyStarted = errors.New("server: already started")
	// ErrClosed 已经 Shutdown 的 Manager 不能再启动
	ErrClosed = errors.New("server: closed")
)

// Config 单个监听端口的配置
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
	// 非 nil 时以 HTTPS 提供服务
	TLS *tls.Config
}

// DefaultConfig 默认监听 :8080
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     2 * time.Minute,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ConfigFrom 用 server 配置段覆盖默认值，端口单独给出。
// 证书与私钥同时配置时启用 TLS。
func ConfigFrom(sc config.ServerConfig, port int) (Config, error) {
	cfg := DefaultConfig()
	cfg.Addr = net.JoinHostPort("", strconv.Itoa(port))
	for dst, src := range map[*time.Duration]time.Duration{
		&cfg.ReadTimeout:     sc.ReadTimeout,
		&cfg.WriteTimeout:    sc.WriteTimeout,
		&cfg.ShutdownTimeout: sc.ShutdownTimeout,
	} {
		if src > 0 {
			*dst = src
		}
	}
	if sc.TLSCertFile == "" || sc.TLSKeyFile == "" {
		return cfg, nil
	}
	tlsCfg, err := tlsutil.ServerTLSConfig(sc.TLSCertFile, sc.TLSKeyFile)
	if err != nil {
		return Config{}, fmt.Errorf("load TLS key pair: %w", err)
	}
	cfg.TLS = tlsCfg
	return cfg, nil
}

// =============================================================================
// 🌐 Manager
// =============================================================================

type phase int

const (
	phaseIdle phase = iota
	phaseServing
	phaseStopped
)

// Manager 管理一个 http.Server 的生命周期：idle → serving → stopped，
// 不可重启。
//
// 所有请求的 context 都派生自一个内部 base context，Shutdown 开始时
// 取消它。http.Server.Shutdown 不追踪被劫持的 websocket 连接，
// 流式会话靠这个信号结束。
type Manager struct {
	name   string
	cfg    Config
	srv    *http.Server
	logger *zap.Logger

	mu     sync.Mutex
	phase  phase
	ln     net.Listener
	errCh  chan error
	cancel context.CancelFunc
}

// NewManager name 用来区分 api 与 metrics 两个实例的日志
func NewManager(name string, handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http_server"), zap.String("server", name))

	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:           cfg.Addr,
		Handler:        handler,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
		TLSConfig:      cfg.TLS,
		ErrorLog:       zap.NewStdLog(logger),
		BaseContext:    func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)

	return &Manager{
		name:   name,
		cfg:    cfg,
		srv:    srv,
		logger: logger,
		errCh:  make(chan error, 1),
		cancel: cancel,
	}
}

// Start 绑定端口后立即返回，监听失败同步返回，服务期间的错误走 Errors()
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case phaseServing:
		return ErrAlreadyStarted
	case phaseStopped:
		return ErrClosed
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.cfg.Addr, err)
	}
	if m.cfg.TLS != nil {
		ln = tls.NewListener(ln, m.cfg.TLS)
	}
	m.ln = ln
	m.phase = phaseServing

	m.logger.Info("listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", m.cfg.TLS != nil))

	go func() {
		err := m.srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		m.logger.Error("serve failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}()
	return nil
}

// Shutdown 停止接收新连接并等待在途请求，最长 ShutdownTimeout。
// 重复调用返回 nil；从未启动过的 Manager 直接进入 stopped。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.phase
	if prev == phaseStopped {
		return nil
	}
	m.phase = phaseStopped
	if prev == phaseIdle {
		m.cancel()
		return nil
	}

	m.logger.Info("shutting down", zap.Duration("timeout", m.cfg.ShutdownTimeout))
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Error("graceful shutdown incomplete", zap.Error(err))
		return err
	}
	m.logger.Info("stopped")
	return nil
}

// Run 启动并阻塞到 ctx 取消或服务出错，然后优雅关闭
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-m.errCh:
	}

	// ctx 已经取消，关闭阶段只继承它的值
	return errors.Join(serveErr, m.Shutdown(context.WithoutCancel(ctx)))
}

// Errors 服务期间的异步错误
func (m *Manager) Errors() <-chan error { return m.errCh }

// Name 实例名
func (m *Manager) Name() string { return m.name }

// Addr 实际监听地址（":0" 时可以拿到系统分配的端口），未启动时返回配置值
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return m.cfg.Addr
	}
	return m.ln.Addr().String()
}

// IsRunning 处于 serving 阶段
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == phaseServing
}
