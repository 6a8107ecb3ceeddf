package config

import "time"

// DefaultConfig 单机可直接启动的配置：内存检查点，JWT 与遥测关闭
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Engine:     DefaultEngineConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Mongo:      DefaultMongoConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		JWT:        DefaultJWTConfig(),
	}
}

// DefaultServerConfig 写超时放宽到 5 分钟，同步 /v1/runs 要等整个会话结束
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultEngineConfig 不指定初始 Agent，由引擎取注册表里的第一个
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PersistDirectory: "./data/checkpoints",
		MaxSteps:         50,
		SummaryTokenizer: "estimator",
		BatchConcurrency: 4,
	}
}

func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Type:       "memory",
		KeyPrefix:  "agentrelay:",
		Collection: "checkpoints",
	}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultDatabaseConfig sql 检查点默认连 postgres，表结构需先执行 migrate up
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentrelay",
		Name:            "agentrelay",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultMongoConfig URI 留空，选择 mongo 检查点时必须显式配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Database:       "agentrelay",
		ConnectTimeout: 10 * time.Second,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 开启后按 10% 采样
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentrelay",
		SampleRate:   0.1,
	}
}

func DefaultJWTConfig() JWTConfig { return JWTConfig{} }
