package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentrelay/config"
)

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("database pool is closed")

// =============================================================================
// 🗄️ 连接池
// =============================================================================

// Pool 包装 SQL 检查点存储使用的 gorm 连接，负责连接池参数与后台探活。
type Pool struct {
	db       *gorm.DB
	sqlDB    *sql.DB
	settings PoolSettings
	name     string
	observer StatsObserver
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// StatsObserver 每次探活成功后接收统计，cmd 中接到 metrics.Collector
type StatsObserver func(database string, stats PoolStats)

// PoolOption 配置 Pool
type PoolOption func(*Pool)

// WithStatsObserver 设置统计观察者
func WithStatsObserver(o StatsObserver) PoolOption {
	return func(p *Pool) { p.observer = o }
}

// WithName 日志与指标中的数据库名称，默认为方言名
func WithName(name string) PoolOption {
	return func(p *Pool) { p.name = name }
}

// PoolSettings 连接池参数
type PoolSettings struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	// 探活间隔，0 表示不启动后台探活
	ProbeInterval time.Duration `yaml:"probe_interval" json:"probe_interval"`
	// 单次探活超时
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
}

// DefaultPoolSettings 检查点写入是短事务，连接数不需要很大
func DefaultPoolSettings() PoolSettings {
	return PoolSettings{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		ProbeInterval:   30 * time.Second,
		ProbeTimeout:    3 * time.Second,
	}
}

// SettingsFrom 用 database 配置段覆盖默认值
func SettingsFrom(cfg config.DatabaseConfig) PoolSettings {
	s := DefaultPoolSettings()
	if cfg.MaxOpenConns > 0 {
		s.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		s.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		s.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	return s
}

// Validate 校验连接池参数
func (s PoolSettings) Validate() error {
	var errs []error
	if s.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("max_open_conns must be positive, got %d", s.MaxOpenConns))
	}
	if s.MaxIdleConns < 0 {
		errs = append(errs, fmt.Errorf("max_idle_conns must not be negative, got %d", s.MaxIdleConns))
	}
	if s.MaxOpenConns > 0 && s.MaxIdleConns > s.MaxOpenConns {
		errs = append(errs, fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)", s.MaxIdleConns, s.MaxOpenConns))
	}
	return errors.Join(errs...)
}

// NewPool 应用连接池参数，ProbeInterval > 0 时启动后台探活
func NewPool(db *gorm.DB, settings PoolSettings, logger *zap.Logger, opts ...PoolOption) (*Pool, error) {
	if db == nil {
		return nil, errors.New("database: nil gorm handle")
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("pool settings: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.ProbeTimeout <= 0 {
		settings.ProbeTimeout = DefaultPoolSettings().ProbeTimeout
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(settings.MaxOpenConns)
	sqlDB.SetMaxIdleConns(settings.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(settings.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(settings.ConnMaxIdleTime)

	p := &Pool{
		db:       db,
		sqlDB:    sqlDB,
		settings: settings,
		name:     db.Dialector.Name(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.With(zap.String("component", "db_pool"), zap.String("database", p.name))

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	if settings.ProbeInterval > 0 {
		go p.probeLoop(ctx)
	} else {
		close(p.done)
	}

	p.logger.Debug("database pool ready",
		zap.Int("max_open_conns", settings.MaxOpenConns),
		zap.Int("max_idle_conns", settings.MaxIdleConns),
		zap.Duration("probe_interval", settings.ProbeInterval))
	return p, nil
}

// DB 返回 gorm 句柄
func (p *Pool) DB() *gorm.DB { return p.db }

// Name 数据库名称
func (p *Pool) Name() string { return p.name }

// Ping 探测连接，关闭后返回 ErrPoolClosed
func (p *Pool) Ping(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	return p.sqlDB.PingContext(ctx)
}

// Close 停止探活并关闭连接，可重复调用
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	<-p.done
	return p.sqlDB.Close()
}

// =============================================================================
// 🏥 探活
// =============================================================================

func (p *Pool) probeLoop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.settings.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.Probe(ctx)
		}
	}
}

// Probe 执行一次带超时的探活，成功时把统计交给观察者
func (p *Pool) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.settings.ProbeTimeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		if !errors.Is(err, ErrPoolClosed) && !errors.Is(err, context.Canceled) {
			p.logger.Warn("database probe failed", zap.Error(err))
		}
		return err
	}
	stats := p.Stats()
	if p.observer != nil {
		p.observer(p.name, stats)
	}
	return nil
}

// =============================================================================
// 📊 统计
// =============================================================================

// PoolStats database/sql 统计的精简视图
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// Stats 当前连接池统计
func (p *Pool) Stats() PoolStats {
	s := p.sqlDB.Stats()
	return PoolStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}
}
