package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/BaSui01/agentrelay/agent"
)

// Config 对应 agentrelay.yaml 的顶层结构。除 agents 外每个字段都可以用
// AGENTRELAY_<段>_<字段> 环境变量覆盖，例如 AGENTRELAY_SERVER_HTTP_PORT。
type Config struct {
	Server     ServerConfig     `yaml:"server" env:"SERVER"`
	Engine     EngineConfig     `yaml:"engine" env:"ENGINE"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" env:"CHECKPOINT"`
	Redis      RedisConfig      `yaml:"redis" env:"REDIS"`
	Database   DatabaseConfig   `yaml:"database" env:"DATABASE"`
	Mongo      MongoConfig      `yaml:"mongo" env:"MONGO"`

	// 声明式 Agent，只能来自文件；热更新只重载这一段
	Agents []agent.Definition `yaml:"agents" env:"-"`

	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	JWT       JWTConfig       `yaml:"jwt" env:"JWT"`
}

// ServerConfig API 端口与 metrics 端口共用超时设置
type ServerConfig struct {
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 0 表示不单独启动 metrics 端口
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// 令牌桶按租户（无租户时按客户端 IP）分配，RPS<=0 关闭限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// 精确匹配 Origin，为空时不输出 CORS 头
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	// 两者同时设置才启用 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

type EngineConfig struct {
	// 为空时从注册表里第一个 Agent 开始
	InitialAgent string `yaml:"initial_agent" env:"INITIAL_AGENT"`
	// checkpoint.type=file 的根目录
	PersistDirectory string `yaml:"persist_directory" env:"PERSIST_DIRECTORY"`
	MaxSteps         int    `yaml:"max_steps" env:"MAX_STEPS"`
	// estimator 或 tiktoken 编码名（cl100k_base 等）
	SummaryTokenizer string `yaml:"summary_tokenizer" env:"SUMMARY_TOKENIZER"`
	BatchConcurrency int    `yaml:"batch_concurrency" env:"BATCH_CONCURRENCY"`
}

// CheckpointConfig 选择检查点后端，连接参数在 redis/database/mongo 段
type CheckpointConfig struct {
	Type       string `yaml:"type" env:"TYPE"` // memory | file | redis | sql | mongo
	KeyPrefix  string `yaml:"key_prefix" env:"KEY_PREFIX"`
	Collection string `yaml:"collection" env:"COLLECTION"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	TLS          bool   `yaml:"tls" env:"TLS"`
	// 0 关闭后台 PING
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DatabaseConfig sql 检查点与 migrate 子命令共用
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"` // postgres | mysql | sqlite
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	// sqlite 时是文件路径
	Name    string `yaml:"name" env:"NAME"`
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`

	// serve 启动前执行 migrate up
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

type MongoConfig struct {
	URI            string        `yaml:"uri" env:"URI"`
	Database       string        `yaml:"database" env:"DATABASE"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`   // debug | info | warn | error
	Format           string   `yaml:"format" env:"FORMAT"` // json | console
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig OTLP/gRPC 导出；关闭时 tracer 与 meter 都是 noop
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// JWTConfig Secret 校验 HS256，PublicKey（PEM）校验 RS256，可以同时配置。
// Issuer 与 Audience 为空时不校验。
type JWTConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// =============================================================================
// 🔍 校验
// =============================================================================

var (
	checkpointTypes = []string{"memory", "file", "redis", "sql", "mongo"}
	databaseDrivers = []string{"postgres", "mysql", "sqlite"}
)

// Validate 一次返回全部问题，而不是遇到第一个就停
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port %d", c.Server.HTTPPort))
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid metrics port %d", c.Server.MetricsPort))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.tls_cert_file and server.tls_key_file must be set together"))
	}
	if c.Engine.MaxSteps <= 0 {
		errs = append(errs, errors.New("engine.max_steps must be positive"))
	}
	if !slices.Contains(checkpointTypes, c.Checkpoint.Type) {
		errs = append(errs, fmt.Errorf("unknown checkpoint.type %q", c.Checkpoint.Type))
	}
	if c.Checkpoint.Type == "file" && c.Engine.PersistDirectory == "" {
		errs = append(errs, errors.New("checkpoint.type file requires engine.persist_directory"))
	}
	if c.Checkpoint.Type == "sql" {
		switch {
		case !slices.Contains(databaseDrivers, c.Database.Driver):
			errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
		case c.Database.Driver == "sqlite" && c.Database.Name == "":
			errs = append(errs, errors.New("database.name must be the file path when database.driver is sqlite"))
		}
	}
	if c.Checkpoint.Type == "mongo" && c.Mongo.URI == "" {
		errs = append(errs, errors.New("checkpoint.type mongo requires mongo.uri"))
	}
	if c.JWT.Enabled && c.JWT.Secret == "" && c.JWT.PublicKey == "" {
		errs = append(errs, errors.New("jwt.secret is required when jwt is enabled without jwt.public_key"))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, errors.New("telemetry.sample_rate must be between 0 and 1"))
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, def := range c.Agents {
		switch {
		case def.Name == "":
			errs = append(errs, fmt.Errorf("agents[%d]: name is required", i))
		case seen[def.Name]:
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate name %q", i, def.Name))
		}
		seen[def.Name] = true
		if def.Kind == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: kind is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}

// DSN gorm 方言使用的连接串；未知驱动返回空串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true",
			d.User, d.Password, net.JoinHostPort(d.Host, strconv.Itoa(d.Port)), d.Name)
	case "sqlite":
		return d.Name
	}
	return ""
}
