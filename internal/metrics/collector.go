// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
	"github.com/BaSui01/agentrelay/workflow"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 把 HTTP、会话、路由与连接池指标注册到同一 namespace。
//
// Collector 同时实现 workflow.Tracer、workflow.RouteObserver 和
// workflow.SideChannelObserver，可以直接挂到 Engine 上。
type Collector struct {
	http     httpMetrics
	sessions sessionMetrics
	turns    turnMetrics

	routes      *prometheus.CounterVec
	sideChannel *prometheus.CounterVec
	dbPool      *prometheus.GaugeVec

	logger *zap.Logger
}

type httpMetrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	responseSize *prometheus.HistogramVec
}

type sessionMetrics struct {
	started prometheus.Counter
	ended   *prometheus.CounterVec
	active  prometheus.Gauge
}

type turnMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	_ workflow.Tracer              = (*Collector)(nil)
	_ workflow.RouteObserver       = (*Collector)(nil)
	_ workflow.SideChannelObserver = (*Collector)(nil)
)

// turnBuckets 覆盖从脚本 Agent 的毫秒级到模型调用的分钟级
var turnBuckets = []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 15, 30, 60, 180}

// NewCollector 注册到 prometheus.DefaultRegisterer
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 注册到 reg。同一 reg 上重复注册同名 namespace 会 panic。
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	opts := func(subsystem, name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}
	}
	histogram := func(subsystem, name, help string, buckets []float64) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		}
	}

	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.http = httpMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts(opts("http", "requests_total",
			"HTTP requests by method, route pattern and status class")),
			[]string{"method", "route", "status"}),
		duration: f.NewHistogramVec(histogram("http", "request_duration_seconds",
			"HTTP request latency", prometheus.DefBuckets),
			[]string{"method", "route"}),
		responseSize: f.NewHistogramVec(histogram("http", "response_size_bytes",
			"HTTP response body size", prometheus.ExponentialBuckets(64, 8, 7)),
			[]string{"route"}),
	}

	c.sessions = sessionMetrics{
		started: f.NewCounter(prometheus.CounterOpts(opts("session", "started_total",
			"Sessions started"))),
		ended: f.NewCounterVec(prometheus.CounterOpts(opts("session", "ended_total",
			"Sessions ended, by final status")),
			[]string{"status"}),
		active: f.NewGauge(prometheus.GaugeOpts(opts("session", "active",
			"Sessions currently running"))),
	}

	c.turns = turnMetrics{
		total: f.NewCounterVec(prometheus.CounterOpts(opts("agent", "turns_total",
			"Agent turns, by agent and resulting status")),
			[]string{"agent", "status"}),
		duration: f.NewHistogramVec(histogram("agent", "turn_duration_seconds",
			"Wall time of one agent turn", turnBuckets),
			[]string{"agent"}),
	}

	c.routes = f.NewCounterVec(prometheus.CounterOpts(opts("router", "decisions_total",
		"Routing decisions, by precedence rule")),
		[]string{"rule", "from", "to"})

	c.sideChannel = f.NewCounterVec(prometheus.CounterOpts(opts("engine", "side_channel_errors_total",
		"Tracing and persistence failures suppressed by the engine")),
		[]string{"code"})

	c.dbPool = f.NewGaugeVec(prometheus.GaugeOpts(opts("db_pool", "connections",
		"Checkpoint database connections, by state")),
		[]string{"database", "state"})

	c.logger.Debug("metrics collector registered", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🌐 HTTP
// =============================================================================

// RecordHTTPRequest 记录一次请求。route 必须是路由模板而不是原始路径。
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration, responseSize int64) {
	c.http.requests.WithLabelValues(method, route, statusClass(status)).Inc()
	c.http.duration.WithLabelValues(method, route).Observe(duration.Seconds())
	c.http.responseSize.WithLabelValues(route).Observe(float64(responseSize))
}

// =============================================================================
// 🎭 会话（workflow.Tracer）
// =============================================================================

// OnSessionStart 会话开始
func (c *Collector) OnSessionStart(context.Context, string, string) error {
	c.sessions.started.Inc()
	c.sessions.active.Inc()
	return nil
}

// OnStep 记录一个 Agent 回合，出错的回合记为 error
func (c *Collector) OnStep(_ context.Context, st workflow.StepTrace) error {
	status := st.Status
	if st.Err != nil {
		status = agent.StatusError
	}
	c.turns.total.WithLabelValues(st.Agent, string(status)).Inc()
	c.turns.duration.WithLabelValues(st.Agent).Observe(st.Duration.Seconds())
	return nil
}

// OnSessionEnd 会话结束
func (c *Collector) OnSessionEnd(_ context.Context, _ string, status agent.Status, _ map[string]any) error {
	c.sessions.ended.WithLabelValues(string(status)).Inc()
	c.sessions.active.Dec()
	return nil
}

// OnRoute 路由决策，入口路由的 from 记为 "-"
func (c *Collector) OnRoute(_ context.Context, _ string, d workflow.RouteDecision) {
	from := d.From
	if from == "" {
		from = "-"
	}
	c.routes.WithLabelValues(d.Rule.String(), from, d.To).Inc()
}

// OnSideChannelError 被引擎吞掉的追踪 / 持久化错误
func (c *Collector) OnSideChannelError(_ context.Context, code types.ErrorCode, err error) {
	c.sideChannel.WithLabelValues(string(code)).Inc()
	c.logger.Debug("side channel error", zap.String("code", string(code)), zap.Error(err))
}

// =============================================================================
// 🗄️ 连接池
// =============================================================================

// RecordDBPool 记录检查点数据库连接池快照
func (c *Collector) RecordDBPool(database string, open, inUse, idle int) {
	c.dbPool.WithLabelValues(database, "open").Set(float64(open))
	c.dbPool.WithLabelValues(database, "in_use").Set(float64(inUse))
	c.dbPool.WithLabelValues(database, "idle").Set(float64(idle))
}

// statusClass 把状态码归为 2xx 等类别，避免标签基数膨胀
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
