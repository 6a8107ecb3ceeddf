// =============================================================================
// AgentRelay 主入口
// =============================================================================
// 多 Agent 接力会话服务与命令行工具
//
// 使用方法:
//
//	agentrelay serve --config config.yaml      # 启动服务
//	agentrelay run "build a CLI"               # 本地运行一次会话
//	agentrelay run --stream "build a CLI"      # 逐回合输出
//	agentrelay threads                         # 列出持久化会话
//	agentrelay history <thread-id>             # 查看检查点
//	agentrelay graph --format yaml             # 导出交接图
//	agentrelay migrate up                      # 运行数据库迁移
//	agentrelay health --addr http://localhost:8080
//	agentrelay version
// =============================================================================

// @title AgentRelay API
// @version 1.0.0
// @description AgentRelay runs multi-agent sessions where agents hand the conversation to each other.
// @description
// @description ## Features
// @description - Synchronous and websocket-streamed sessions
// @description - Per-turn checkpoints with history and thread management
// @description - Handoff graph inspection
// @description - Runtime config view and hot reload of declarative agents

// @contact.name AgentRelay Team
// @contact.url https://github.com/BaSui01/agentrelay

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT bearer token: "Bearer <token>"

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentrelay/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentrelay",
		Short:         "AgentRelay - multi-agent relay sessions",
		Long:          `AgentRelay routes a conversation between agents that hand off to each other until the task completes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to configuration file (YAML)")

	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newThreadsCmd(),
		newHistoryCmd(),
		newGraphCmd(),
		newMigrateCmd(),
		newHealthCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig 加载并校验配置
func loadConfig(cmd *cobra.Command) (*config.Loader, *config.Config, error) {
	loader := config.NewLoader()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return loader, cfg, nil
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}

// cliLogger 命令行子命令的日志只写 stderr，stdout 留给结果输出
func cliLogger(cfg config.LogConfig) *zap.Logger {
	cfg.OutputPaths = []string{"stderr"}
	if cfg.Level == "" || cfg.Level == "info" {
		cfg.Level = "warn"
	}
	return initLogger(cfg)
}
