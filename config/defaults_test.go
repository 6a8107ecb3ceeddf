package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultServerConfig(), cfg.Server)
	assert.Equal(t, DefaultEngineConfig(), cfg.Engine)
	assert.Equal(t, DefaultCheckpointConfig(), cfg.Checkpoint)
	assert.Equal(t, DefaultRedisConfig(), cfg.Redis)
	assert.Equal(t, DefaultDatabaseConfig(), cfg.Database)
	assert.Equal(t, DefaultMongoConfig(), cfg.Mongo)
	assert.Equal(t, DefaultLogConfig(), cfg.Log)
	assert.Equal(t, DefaultTelemetryConfig(), cfg.Telemetry)
	assert.Equal(t, DefaultJWTConfig(), cfg.JWT)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultServerConfig(t *testing.T) {
	c := DefaultServerConfig()
	assert.Equal(t, 8080, c.HTTPPort)
	assert.Equal(t, 9091, c.MetricsPort)
	assert.Equal(t, 30*time.Second, c.ReadTimeout)
	assert.Equal(t, 15*time.Second, c.ShutdownTimeout)
	assert.Equal(t, 200, c.RateLimitBurst)
}

func TestDefaultEngineConfig(t *testing.T) {
	c := DefaultEngineConfig()
	assert.Empty(t, c.InitialAgent)
	assert.Equal(t, 50, c.MaxSteps)
	assert.Equal(t, "estimator", c.SummaryTokenizer)
	assert.Equal(t, 4, c.BatchConcurrency)
}

func TestDefaultCheckpointConfig(t *testing.T) {
	c := DefaultCheckpointConfig()
	assert.Equal(t, "memory", c.Type)
	assert.Equal(t, "agentrelay:", c.KeyPrefix)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	c := DefaultDatabaseConfig()
	assert.Equal(t, "postgres", c.Driver)
	assert.Equal(t, 5432, c.Port)
	assert.Equal(t, 5*time.Minute, c.ConnMaxLifetime)
	assert.False(t, c.AutoMigrate)
}

func TestDefaultLogConfig(t *testing.T) {
	c := DefaultLogConfig()
	assert.Equal(t, "info", c.Level)
	assert.Equal(t, "json", c.Format)
	assert.Equal(t, []string{"stdout"}, c.OutputPaths)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	c := DefaultTelemetryConfig()
	assert.False(t, c.Enabled)
	assert.Equal(t, "agentrelay", c.ServiceName)
	assert.Equal(t, 0.1, c.SampleRate)
}
