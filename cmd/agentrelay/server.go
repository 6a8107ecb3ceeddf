package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentrelay/api/handlers"
	"github.com/BaSui01/agentrelay/config"
	"github.com/BaSui01/agentrelay/internal/server"
	"github.com/BaSui01/agentrelay/types"
)

// publicPaths 不需要认证的路径
var publicPaths = []string{"/health", "/healthz", "/ready", "/version", "/metrics"}

// =============================================================================
// 🖥️ 服务器
// =============================================================================

// Server 主服务器：API 与 Metrics 双端口、配置热重载、优雅关闭
type Server struct {
	app      *app
	loader   *config.Loader
	reloader *config.Reloader
	promReg  *prometheus.Registry
	logger   *zap.Logger

	health  *handlers.HealthHandler
	runs    *handlers.RunHandler
	stream  *handlers.StreamHandler
	threads *handlers.ThreadHandler
	agents  *handlers.AgentHandler
	apiSrv  *server.Manager
	metrics *server.Manager
}

// NewServer 创建服务器。promReg 为 nil 时不启动 metrics 端口。
func NewServer(a *app, loader *config.Loader, promReg *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{
		app:      a,
		loader:   loader,
		reloader: config.NewReloader(loader, a.cfg, config.WithReloaderLogger(logger)),
		promReg:  promReg,
		logger:   logger,
	}
	s.reloader.OnReload(config.SyncAgents(a.kinds, a.registry, logger))
	s.initHandlers()
	return s
}

func (s *Server) initHandlers() {
	s.health = handlers.NewHealthHandler(s.logger)
	s.health.RegisterCheck(handlers.NewEngineCheck(s.app.engine))
	s.health.RegisterCheck(handlers.NewStoreCheck(s.app.store))
	if s.app.db != nil {
		s.health.RegisterCheck(handlers.NewFuncCheck("database", s.app.db.Ping))
	}
	if s.app.redis != nil {
		s.health.RegisterCheck(handlers.NewFuncCheck("redis", s.app.redis.Ping))
	}
	if s.app.mongo != nil {
		s.health.RegisterCheck(handlers.NewFuncCheck("mongo", func(ctx context.Context) error {
			return s.app.mongo.Ping(ctx, nil)
		}))
	}

	s.runs = handlers.NewRunHandler(s.app.engine, s.logger)
	s.stream = handlers.NewStreamHandler(s.app.engine, s.logger,
		handlers.WithOriginPatterns(s.app.cfg.Server.CORSAllowedOrigins...))
	s.threads = handlers.NewThreadHandler(s.app.engine, s.logger)
	s.agents = handlers.NewAgentHandler(s.app.engine, s.logger)
}

// Handler 构建带中间件的 API 路由。ctx 结束时限流器的清理协程退出。
func (s *Server) Handler(ctx context.Context) http.Handler {
	cfg := s.app.cfg

	r := chi.NewRouter()
	r.Use(
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
	)
	if s.app.collector != nil {
		r.Use(MetricsMiddleware(s.app.collector))
	}
	r.Use(CORS(cfg.Server.CORSAllowedOrigins))
	if cfg.JWT.Enabled {
		r.Use(JWTAuth(cfg.JWT, publicPaths, s.logger))
	}
	if cfg.Server.RateLimitRPS > 0 {
		r.Use(RateLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, s.logger))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", nil)
	})

	// 健康检查
	r.Get("/health", s.health.HandleHealth)
	r.Get("/healthz", s.health.HandleHealthz)
	r.Get("/ready", s.health.HandleReady)
	r.Get("/version", s.health.HandleVersion(Version, BuildTime, GitCommit))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", s.runs.HandleRun)
		r.Get("/runs/stream", s.stream.HandleStream)

		r.Get("/threads", s.threads.HandleList)
		r.Get("/threads/{id}/checkpoints", s.threads.HandleCheckpoints)
		r.Delete("/threads/{id}", s.threads.HandleDelete)

		r.Get("/agents", s.agents.HandleListAgents)
		r.Get("/graph", s.agents.HandleGraph)

		r.Get("/config", s.handleConfig)
		r.Get("/config/history", s.handleConfigHistory)
		r.Post("/config/reload", s.handleConfigReload)
	})
	return r
}

// MetricsHandler Prometheus 抓取端点
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{Registry: s.promReg}))
	return Chain(mux, Recovery(s.logger), SecurityHeaders())
}

// Run 启动服务并阻塞，直到 ctx 取消或任一服务异常退出
func (s *Server) Run(ctx context.Context) error {
	sc := s.app.cfg.Server

	apiCfg, err := server.ConfigFrom(sc, sc.HTTPPort)
	if err != nil {
		return err
	}
	s.apiSrv = server.NewManager("api", s.Handler(ctx), apiCfg, s.logger)

	if s.promReg != nil && sc.MetricsPort > 0 {
		metricsCfg, err := server.ConfigFrom(sc, sc.MetricsPort)
		if err != nil {
			return err
		}
		// metrics 端口始终为明文 HTTP
		metricsCfg.TLS = nil
		s.metrics = server.NewManager("metrics", s.MetricsHandler(), metricsCfg, s.logger)
	}

	if err := s.reloader.Start(ctx); err != nil {
		s.logger.Warn("config hot reload disabled", zap.Error(err))
	}
	defer func() {
		if err := s.reloader.Stop(); err != nil {
			s.logger.Warn("failed to stop config watcher", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.apiSrv.Run(gctx) })
	if s.metrics != nil {
		g.Go(func() error { return s.metrics.Run(gctx) })
	}
	return g.Wait()
}

// =============================================================================
// ⚙️ 运行时配置
// =============================================================================

// handleConfig 返回脱敏后的当前配置
// @Summary 当前配置
// @Description 返回脱敏后的生效配置
// @Tags config
// @Produce json
// @Success 200 {object} handlers.Response
// @Router /v1/config [get]
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	handlers.WriteSuccess(w, s.reloader.SanitizedConfig())
}

// handleConfigHistory 返回配置版本历史
// @Summary 配置历史
// @Tags config
// @Produce json
// @Success 200 {object} handlers.Response
// @Router /v1/config/history [get]
func (s *Server) handleConfigHistory(w http.ResponseWriter, r *http.Request) {
	handlers.WriteSuccess(w, s.reloader.History())
}

// handleConfigReload 从配置文件重新加载
// @Summary 重新加载配置
// @Description 启用 JWT 时需要 admin 角色
// @Tags config
// @Produce json
// @Success 200 {object} handlers.Response
// @Failure 400 {object} handlers.Response
// @Failure 403 {object} handlers.Response
// @Router /v1/config/reload [post]
func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if s.app.cfg.JWT.Enabled {
		if caller, _ := types.CallerFrom(r.Context()); !caller.HasRole("admin") {
			handlers.WriteError(w, r, types.NewError(types.ErrUnauthorized, "admin role required").
				WithHTTPStatus(http.StatusForbidden), s.logger)
			return
		}
	}
	if s.loader.ConfigPath() == "" {
		handlers.WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest,
			"server was started without a config file", s.logger)
		return
	}
	if err := s.reloader.Reload("api"); err != nil {
		handlers.WriteError(w, r, types.NewError(types.ErrConfiguration, fmt.Sprintf("reload failed: %v", err)).
			WithHTTPStatus(http.StatusBadRequest), s.logger)
		return
	}
	handlers.WriteSuccess(w, s.reloader.History())
}

// prometheusRegistry 创建带 Go 运行时与进程指标的注册表
func prometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
