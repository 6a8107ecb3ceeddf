package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
)

// StepTrace describes one completed agent turn.
type StepTrace struct {
	ThreadID      string        `json:"thread_id"`
	Step          int           `json:"step"`
	Agent         string        `json:"agent"`
	InputSummary  string        `json:"input_summary"`
	OutputSummary string        `json:"output_summary"`
	Duration      time.Duration `json:"duration"`
	Status        agent.Status  `json:"status"`
	Err           error         `json:"-"`
}

// Tracer receives session and turn events. Returned errors (and panics) are
// logged by the engine and never change the outcome of a session.
type Tracer interface {
	OnSessionStart(ctx context.Context, threadID, input string) error
	OnStep(ctx context.Context, trace StepTrace) error
	OnSessionEnd(ctx context.Context, threadID string, status agent.Status, artifacts map[string]any) error
}

// RouteObserver is optionally implemented by tracers that want every
// routing decision.
type RouteObserver interface {
	OnRoute(ctx context.Context, threadID string, decision RouteDecision)
}

// SideChannelObserver is optionally implemented by tracers that count
// suppressed persistence and tracing failures.
type SideChannelObserver interface {
	OnSideChannelError(ctx context.Context, code types.ErrorCode, err error)
}

// NopTracer ignores every event.
type NopTracer struct{}

func (NopTracer) OnSessionStart(context.Context, string, string) error { return nil }
func (NopTracer) OnStep(context.Context, StepTrace) error              { return nil }
func (NopTracer) OnSessionEnd(context.Context, string, agent.Status, map[string]any) error {
	return nil
}

// LogTracer writes events to a zap logger.
type LogTracer struct {
	logger *zap.Logger
}

// NewLogTracer creates a LogTracer.
func NewLogTracer(logger *zap.Logger) *LogTracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTracer{logger: logger.With(zap.String("component", "tracer"))}
}

func (t *LogTracer) OnSessionStart(_ context.Context, threadID, input string) error {
	t.logger.Info("session started",
		zap.String("thread_id", threadID),
		zap.String("input", truncate(input, 120)),
	)
	return nil
}

func (t *LogTracer) OnStep(_ context.Context, s StepTrace) error {
	fields := []zap.Field{
		zap.String("thread_id", s.ThreadID),
		zap.Int("step", s.Step),
		zap.String("agent", s.Agent),
		zap.String("input", s.InputSummary),
		zap.String("output", s.OutputSummary),
		zap.Duration("duration", s.Duration),
		zap.String("status", string(s.Status)),
	}
	if s.Err != nil {
		t.logger.Warn("agent turn failed", append(fields, zap.Error(s.Err))...)
		return nil
	}
	t.logger.Info("agent turn", fields...)
	return nil
}

func (t *LogTracer) OnSessionEnd(_ context.Context, threadID string, status agent.Status, artifacts map[string]any) error {
	t.logger.Info("session ended",
		zap.String("thread_id", threadID),
		zap.String("status", string(status)),
		zap.Int("artifacts", len(artifacts)),
	)
	return nil
}

func (t *LogTracer) OnRoute(_ context.Context, threadID string, d RouteDecision) {
	t.logger.Debug("route decided",
		zap.String("thread_id", threadID),
		zap.String("rule", d.Rule.String()),
		zap.String("from", d.From),
		zap.String("to", d.To),
	)
}

// MultiTracer fans events out to several tracers. Every tracer is called
// even when an earlier one fails; the errors are joined.
type MultiTracer []Tracer

func (m MultiTracer) OnSessionStart(ctx context.Context, threadID, input string) error {
	var errs []error
	for _, t := range m {
		errs = append(errs, callTracer(func() error { return t.OnSessionStart(ctx, threadID, input) }))
	}
	return errors.Join(errs...)
}

func (m MultiTracer) OnStep(ctx context.Context, s StepTrace) error {
	var errs []error
	for _, t := range m {
		errs = append(errs, callTracer(func() error { return t.OnStep(ctx, s) }))
	}
	return errors.Join(errs...)
}

func (m MultiTracer) OnSessionEnd(ctx context.Context, threadID string, status agent.Status, artifacts map[string]any) error {
	var errs []error
	for _, t := range m {
		errs = append(errs, callTracer(func() error { return t.OnSessionEnd(ctx, threadID, status, artifacts) }))
	}
	return errors.Join(errs...)
}

func (m MultiTracer) OnRoute(ctx context.Context, threadID string, d RouteDecision) {
	for _, t := range m {
		if o, ok := t.(RouteObserver); ok {
			_ = callTracer(func() error { o.OnRoute(ctx, threadID, d); return nil })
		}
	}
}

func (m MultiTracer) OnSideChannelError(ctx context.Context, code types.ErrorCode, err error) {
	for _, t := range m {
		if o, ok := t.(SideChannelObserver); ok {
			_ = callTracer(func() error { o.OnSideChannelError(ctx, code, err); return nil })
		}
	}
}

// callTracer runs fn, converting a panic into an error.
func callTracer(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tracer panicked: %v", r)
		}
	}()
	return fn()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
