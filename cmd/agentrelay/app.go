package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/agent/persistence"
	"github.com/BaSui01/agentrelay/config"
	"github.com/BaSui01/agentrelay/internal/cache"
	"github.com/BaSui01/agentrelay/internal/database"
	"github.com/BaSui01/agentrelay/internal/metrics"
	"github.com/BaSui01/agentrelay/internal/migration"
	"github.com/BaSui01/agentrelay/internal/telemetry"
	"github.com/BaSui01/agentrelay/workflow"
)

// =============================================================================
// 🧩 应用装配
// =============================================================================

// app 持有一次进程生命周期内的全部依赖
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers
	collector *metrics.Collector

	db    *database.Pool
	redis *cache.Manager
	mongo *mongo.Client

	store    persistence.CheckpointStore
	kinds    *agent.Kinds
	registry *agent.Registry
	engine   *workflow.Engine
}

// appOptions 控制可选组件
type appOptions struct {
	// collector 非 nil 时作为引擎追踪器并记录连接池指标
	collector *metrics.Collector
	// telemetry 为 false 时不初始化 OpenTelemetry
	telemetry bool
}

// newApp 按配置装配引擎与其存储后端。失败时已创建的资源会被释放。
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, collector: opts.collector}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if opts.telemetry {
		a.telemetry, err = telemetry.Init(ctx, cfg.Telemetry, Version, logger)
		if err != nil {
			logger.Warn("failed to initialize telemetry", zap.Error(err))
			a.telemetry, err = nil, nil
		}
	}

	backends, err := a.openBackends(ctx)
	if err != nil {
		return nil, err
	}

	a.store, err = persistence.NewCheckpointStore(persistence.StoreConfig{
		Type:       persistence.StoreType(cfg.Checkpoint.Type),
		BaseDir:    cfg.Engine.PersistDirectory,
		KeyPrefix:  cfg.Checkpoint.KeyPrefix,
		Collection: cfg.Checkpoint.Collection,
	}, backends)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint store: %w", err)
	}

	a.kinds = agent.NewKinds(logger)
	a.registry = agent.NewRegistry(logger)
	if err = a.kinds.RegisterDefinitions(a.registry, cfg.Agents); err != nil {
		return nil, fmt.Errorf("register agents: %w", err)
	}

	tracers := []workflow.Tracer{workflow.NewLogTracer(logger)}
	if a.collector != nil {
		tracers = append(tracers, a.collector)
	}
	otelTracer, err := a.telemetry.EngineTracer()
	if err != nil {
		return nil, err
	}
	if _, nop := otelTracer.(workflow.NopTracer); !nop {
		tracers = append(tracers, otelTracer)
	}

	a.engine, err = workflow.NewEngine(a.registry, workflow.Config{
		InitialAgent:     cfg.Engine.InitialAgent,
		PersistDirectory: cfg.Engine.PersistDirectory,
		MaxSteps:         cfg.Engine.MaxSteps,
		SummaryTokenizer: cfg.Engine.SummaryTokenizer,
	},
		workflow.WithStore(a.store),
		workflow.WithTracer(tracers...),
		workflow.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("engine ready",
		zap.String("checkpoint_store", cfg.Checkpoint.Type),
		zap.Int("agents", a.registry.Len()),
		zap.Int("max_steps", a.engine.Config().MaxSteps),
	)
	return a, nil
}

// openBackends 只连接检查点类型需要的后端
func (a *app) openBackends(ctx context.Context) (persistence.Backends, error) {
	var backends persistence.Backends
	switch persistence.StoreType(a.cfg.Checkpoint.Type) {
	case persistence.StoreTypeSQL:
		db, err := a.openDatabase(ctx)
		if err != nil {
			return backends, err
		}
		backends.DB = db
	case persistence.StoreTypeRedis:
		rm, err := cache.NewManager(ctx, a.cfg.Redis, a.logger)
		if err != nil {
			return backends, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = rm
		backends.Redis = rm.Client()
	case persistence.StoreTypeMongo:
		db, err := a.openMongo(ctx)
		if err != nil {
			return backends, err
		}
		backends.Mongo = db
	}
	return backends, nil
}

func (a *app) openDatabase(ctx context.Context) (*gorm.DB, error) {
	opts := []database.PoolOption{database.WithName(a.cfg.Database.Driver)}
	if a.collector != nil {
		opts = append(opts, database.WithStatsObserver(func(name string, s database.PoolStats) {
			a.collector.RecordDBPool(name, s.OpenConnections, s.InUse, s.Idle)
		}))
	}
	pm, err := database.Open(a.cfg.Database, a.logger, opts...)
	if err != nil {
		return nil, err
	}
	a.db = pm

	if a.cfg.Database.AutoMigrate {
		m, err := migration.NewMigratorFromDatabaseConfig(a.cfg.Database, a.logger)
		if err != nil {
			return nil, fmt.Errorf("create migrator: %w", err)
		}
		defer m.Close()
		if err := m.Up(ctx); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	a.logger.Info("database connected", zap.String("driver", a.cfg.Database.Driver))
	return pm.DB(), nil
}

func (a *app) openMongo(ctx context.Context) (*mongo.Database, error) {
	timeout := a.cfg.Mongo.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client, err := mongo.Connect(options.Client().
		ApplyURI(a.cfg.Mongo.URI).
		SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	a.mongo = client

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	a.logger.Info("mongo connected", zap.String("database", a.cfg.Mongo.Database))
	return client.Database(a.cfg.Mongo.Database), nil
}

// Close 按依赖逆序释放资源
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.mongo != nil {
		errs = append(errs, a.mongo.Disconnect(ctx))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
