package workflow

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/BaSui01/agentrelay/agent"
)

const instrumentationName = "github.com/BaSui01/agentrelay/workflow"

// OTelTracer 将会话与回合导出为 OpenTelemetry span 与指标
//
// 每个会话一个根 span（agentrelay.session），每个回合一个子 span
// （agentrelay.turn），路由决策作为会话 span 上的事件记录。
type OTelTracer struct {
	tracer trace.Tracer
	meter  metric.Meter

	// 计数器
	sessionTotal metric.Int64Counter
	turnTotal    metric.Int64Counter
	routeTotal   metric.Int64Counter
	// 直方图
	turnDuration metric.Float64Histogram
	sessionSteps metric.Int64Histogram
	// 仪表
	activeSessions metric.Int64UpDownCounter

	mu       sync.Mutex
	sessions map[string]*otelSession
}

type otelSession struct {
	ctx   context.Context
	span  trace.Span
	steps int
}

// NewOTelTracer 创建 OTel 追踪器，使用全局 TracerProvider / MeterProvider
func NewOTelTracer() (*OTelTracer, error) {
	return NewOTelTracerWithProviders(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// NewOTelTracerWithProviders 使用指定的 provider 创建追踪器（便于测试）
func NewOTelTracerWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*OTelTracer, error) {
	meter := mp.Meter(instrumentationName)
	t := &OTelTracer{
		tracer:   tp.Tracer(instrumentationName),
		meter:    meter,
		sessions: make(map[string]*otelSession),
	}

	var err error

	// 会话计数
	t.sessionTotal, err = meter.Int64Counter("agentrelay.session.total",
		metric.WithDescription("Total number of finished sessions"),
		metric.WithUnit("{session}"))
	if err != nil {
		return nil, err
	}

	// 回合计数
	t.turnTotal, err = meter.Int64Counter("agentrelay.turn.total",
		metric.WithDescription("Total number of agent turns"),
		metric.WithUnit("{turn}"))
	if err != nil {
		return nil, err
	}

	// 路由计数
	t.routeTotal, err = meter.Int64Counter("agentrelay.route.total",
		metric.WithDescription("Routing decisions by rule"),
		metric.WithUnit("{decision}"))
	if err != nil {
		return nil, err
	}

	// 回合延迟
	t.turnDuration, err = meter.Float64Histogram("agentrelay.turn.duration",
		metric.WithDescription("Agent turn duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60))
	if err != nil {
		return nil, err
	}

	// 会话步数分布
	t.sessionSteps, err = meter.Int64Histogram("agentrelay.session.steps",
		metric.WithDescription("Turns per finished session"),
		metric.WithUnit("{turn}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 8, 13, 21, 34, 50))
	if err != nil {
		return nil, err
	}

	// 活跃会话数
	t.activeSessions, err = meter.Int64UpDownCounter("agentrelay.session.active",
		metric.WithDescription("Number of running sessions"),
		metric.WithUnit("{session}"))
	if err != nil {
		return nil, err
	}

	return t, nil
}

func (t *OTelTracer) OnSessionStart(ctx context.Context, threadID, input string) error {
	ctx, span := t.tracer.Start(ctx, "agentrelay.session",
		trace.WithAttributes(
			attribute.String("agentrelay.thread_id", threadID),
			attribute.Int("agentrelay.input_length", len(input)),
		))

	t.mu.Lock()
	t.sessions[threadID] = &otelSession{ctx: ctx, span: span}
	t.mu.Unlock()

	t.activeSessions.Add(ctx, 1)
	return nil
}

func (t *OTelTracer) OnStep(ctx context.Context, s StepTrace) error {
	parent := ctx
	t.mu.Lock()
	if sess, ok := t.sessions[s.ThreadID]; ok {
		parent = sess.ctx
		sess.steps = s.Step
	}
	t.mu.Unlock()

	end := time.Now()
	_, span := t.tracer.Start(parent, "agentrelay.turn",
		trace.WithTimestamp(end.Add(-s.Duration)),
		trace.WithAttributes(
			attribute.String("agentrelay.agent", s.Agent),
			attribute.Int("agentrelay.step", s.Step),
			attribute.String("agentrelay.input", s.InputSummary),
			attribute.String("agentrelay.output", s.OutputSummary),
		))
	if s.Err != nil {
		span.RecordError(s.Err)
		span.SetStatus(codes.Error, s.Err.Error())
	}
	span.End(trace.WithTimestamp(end))

	attrs := metric.WithAttributes(
		attribute.String("agent", s.Agent),
		attribute.Bool("error", s.Err != nil),
	)
	t.turnTotal.Add(ctx, 1, attrs)
	t.turnDuration.Record(ctx, s.Duration.Seconds(), attrs)
	return nil
}

func (t *OTelTracer) OnRoute(ctx context.Context, threadID string, d RouteDecision) {
	t.mu.Lock()
	sess := t.sessions[threadID]
	t.mu.Unlock()
	if sess != nil {
		sess.span.AddEvent("route", trace.WithAttributes(
			attribute.String("agentrelay.rule", d.Rule.String()),
			attribute.String("agentrelay.from", d.From),
			attribute.String("agentrelay.to", d.To),
		))
	}
	t.routeTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", d.Rule.String())))
}

func (t *OTelTracer) OnSessionEnd(ctx context.Context, threadID string, status agent.Status, artifacts map[string]any) error {
	t.mu.Lock()
	sess := t.sessions[threadID]
	delete(t.sessions, threadID)
	t.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	t.sessionTotal.Add(ctx, 1, attrs)
	if sess == nil {
		return nil
	}

	t.activeSessions.Add(ctx, -1)
	t.sessionSteps.Record(ctx, int64(sess.steps), attrs)

	sess.span.SetAttributes(
		attribute.String("agentrelay.status", string(status)),
		attribute.Int("agentrelay.steps", sess.steps),
		attribute.Int("agentrelay.artifacts", len(artifacts)),
	)
	if status == agent.StatusError {
		sess.span.SetStatus(codes.Error, "session ended with error")
	}
	sess.span.End()
	return nil
}
