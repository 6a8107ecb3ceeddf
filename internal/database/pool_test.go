package database

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/agentrelay/config"
)

// =============================================================================
// 🧪 Pool 测试
// =============================================================================

func mockGorm(t *testing.T) (sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return mock, db
}

func quietSettings() PoolSettings {
	s := DefaultPoolSettings()
	s.ProbeInterval = 0
	return s
}

func TestNewPool(t *testing.T) {
	_, db := mockGorm(t)

	p, err := NewPool(db, quietSettings(), zap.NewNop(), WithName("checkpoints"))
	require.NoError(t, err)

	assert.Same(t, db, p.DB())
	assert.Equal(t, "checkpoints", p.Name())
	assert.Equal(t, 25, p.Stats().MaxOpenConnections)
}

func TestNewPool_DefaultNameIsDialect(t *testing.T) {
	_, db := mockGorm(t)

	p, err := NewPool(db, quietSettings(), nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres", p.Name())
}

func TestNewPool_Rejects(t *testing.T) {
	_, err := NewPool(nil, quietSettings(), nil)
	assert.Error(t, err)

	_, db := mockGorm(t)
	_, err = NewPool(db, PoolSettings{MaxOpenConns: 1, MaxIdleConns: 5}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max_open_conns")
}

func TestPool_Probe(t *testing.T) {
	mock, db := mockGorm(t)

	var seen []string
	p, err := NewPool(db, quietSettings(), zap.NewNop(),
		WithStatsObserver(func(name string, _ PoolStats) { seen = append(seen, name) }))
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, p.Probe(context.Background()))

	// 探活失败时不上报统计
	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.ErrorIs(t, p.Probe(context.Background()), sql.ErrConnDone)

	assert.Equal(t, []string{"postgres"}, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_ProbeLoopStopsOnClose(t *testing.T) {
	mock, db := mockGorm(t)
	mock.MatchExpectationsInOrder(false)
	for range 100 {
		mock.ExpectPing()
	}

	var probes atomic.Int32
	s := quietSettings()
	s.ProbeInterval = 10 * time.Millisecond
	p, err := NewPool(db, s, zap.NewNop(),
		WithStatsObserver(func(string, PoolStats) { probes.Add(1) }))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return probes.Load() >= 2 }, time.Second, 5*time.Millisecond)

	mock.ExpectClose()
	closed := make(chan error, 1)
	go func() { closed <- p.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("probe loop did not stop")
	}

	n := probes.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, probes.Load())
}

func TestPool_Close(t *testing.T) {
	mock, db := mockGorm(t)

	p, err := NewPool(db, quietSettings(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Ping(context.Background()), ErrPoolClosed)
	assert.ErrorIs(t, p.Probe(context.Background()), ErrPoolClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolSettings_Validate(t *testing.T) {
	tests := []struct {
		name     string
		settings PoolSettings
		wantErr  string
	}{
		{name: "defaults", settings: DefaultPoolSettings()},
		{name: "zero idle is allowed", settings: PoolSettings{MaxOpenConns: 4}},
		{name: "no open conns", settings: PoolSettings{MaxIdleConns: 1}, wantErr: "max_open_conns must be positive"},
		{name: "negative idle", settings: PoolSettings{MaxOpenConns: 4, MaxIdleConns: -1}, wantErr: "must not be negative"},
		{name: "idle above open", settings: PoolSettings{MaxOpenConns: 2, MaxIdleConns: 3}, wantErr: "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSettingsFrom(t *testing.T) {
	s := SettingsFrom(config.DatabaseConfig{MaxOpenConns: 7, MaxIdleConns: 3, ConnMaxLifetime: time.Minute})
	assert.Equal(t, 7, s.MaxOpenConns)
	assert.Equal(t, 3, s.MaxIdleConns)
	assert.Equal(t, time.Minute, s.ConnMaxLifetime)
	assert.Equal(t, DefaultPoolSettings().ProbeInterval, s.ProbeInterval)

	// 未设置的字段沿用默认值
	assert.Equal(t, DefaultPoolSettings(), SettingsFrom(config.DatabaseConfig{}))
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialector(config.DatabaseConfig{Driver: driver, Name: "relay.db"})
		require.NoError(t, err, driver)
		assert.Equal(t, driver, d.Name())
	}

	_, err := Dialector(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
	_, err = Dialector(config.DatabaseConfig{Driver: "sqlite"})
	assert.Error(t, err)
}
