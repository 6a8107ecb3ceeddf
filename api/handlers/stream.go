package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/api"
	"github.com/BaSui01/agentrelay/types"
)

// =============================================================================
// 📡 流式会话 Handler（WebSocket）
// =============================================================================

// StreamHandler 通过 WebSocket 逐回合推送会话快照。
// 客户端关闭连接时停止拉取，引擎不再运行后续 Agent。
type StreamHandler struct {
	engine       Engine
	logger       *zap.Logger
	writeTimeout time.Duration
	readTimeout  time.Duration
	origins      []string
}

// StreamOption 配置 StreamHandler
type StreamOption func(*StreamHandler)

// WithWriteTimeout 单条事件写超时
func WithWriteTimeout(d time.Duration) StreamOption {
	return func(h *StreamHandler) { h.writeTimeout = d }
}

// WithReadTimeout 等待首条输入消息的超时
func WithReadTimeout(d time.Duration) StreamOption {
	return func(h *StreamHandler) { h.readTimeout = d }
}

// WithOriginPatterns 允许的跨域来源（host 模式）
func WithOriginPatterns(patterns ...string) StreamOption {
	return func(h *StreamHandler) { h.origins = patterns }
}

// NewStreamHandler 创建流式处理器
func NewStreamHandler(engine Engine, logger *zap.Logger, opts ...StreamOption) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &StreamHandler{
		engine:       engine,
		logger:       logger.With(zap.String("handler", "stream")),
		writeTimeout: 10 * time.Second,
		readTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleStream 处理 GET /v1/runs/stream
// @Summary 流式运行会话
// @Description 升级为 WebSocket。输入取自 ?input= 查询参数，缺省时读取第一条 {"input": "..."} 消息。
// @Description 服务端依次发送 started、每回合一个 step、最后一个 done 事件
// @Tags 会话
// @Param input query string false "会话输入"
// @Success 101 {object} api.StreamEvent "WebSocket 事件流"
// @Security BearerAuth
// @Router /v1/runs/stream [get]
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	// 会话可能比服务器的读写超时更长，超时由 writeTimeout 逐条控制
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		// Accept 已写出 HTTP 错误响应
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	input, err := h.readInput(r, conn)
	if err != nil {
		h.logger.Debug("stream input rejected", zap.Error(err))
		apiErr, ok := types.AsError(err)
		if !ok {
			return
		}
		_ = h.writeEvent(r.Context(), conn, api.StreamEvent{
			Type:  api.StreamEventError,
			Error: errorDetail(apiErr),
		})
		conn.Close(websocket.StatusPolicyViolation, apiErr.Message)
		return
	}

	// 之后不再读取数据帧；连接关闭时 ctx 被取消
	ctx := conn.CloseRead(r.Context())

	stream, err := h.engine.Stream(ctx, input)
	if err != nil {
		apiErr, ok := types.AsError(err)
		if !ok {
			apiErr = types.NewError(types.ErrInternalError, "internal error").WithCause(err)
		}
		h.logger.Error("stream could not start", zap.Error(err))
		_ = h.writeEvent(ctx, conn, api.StreamEvent{Type: api.StreamEventError, Error: errorDetail(apiErr)})
		conn.Close(websocket.StatusInternalError, "graph compilation failed")
		return
	}

	threadID := stream.ThreadID()
	logger := h.logger.With(zap.String("thread_id", threadID))
	if err := h.writeEvent(ctx, conn, api.StreamEvent{Type: api.StreamEventStarted, ThreadID: threadID}); err != nil {
		logger.Debug("client went away before start", zap.Error(err))
		return
	}

	seen := 0
	for state := range stream.States() {
		fresh := state.Messages[min(seen, len(state.Messages)):]
		seen = len(state.Messages)

		event := api.StreamEvent{
			Type:     api.StreamEventStep,
			ThreadID: threadID,
			Step:     state.Step,
			Agent:    state.ActiveAgent,
			Status:   state.Status,
			Messages: api.FromMessages(fresh),
		}
		if err := h.writeEvent(ctx, conn, event); err != nil {
			// 提前返回即结束迭代，会话不再推进
			logger.Info("stream client disconnected", zap.Int("step", state.Step), zap.Error(err))
			return
		}
	}

	final := stream.Final()
	done := api.StreamEvent{
		Type:     api.StreamEventDone,
		ThreadID: threadID,
		Step:     final.Step,
		Agent:    final.ActiveAgent,
		Status:   final.Status,
	}
	if final.Status == agent.StatusError {
		done.Error = stateErrorDetail(final)
	}
	if err := h.writeEvent(ctx, conn, done); err != nil {
		logger.Debug("done event not delivered", zap.Error(err))
		return
	}
	conn.Close(websocket.StatusNormalClosure, string(final.Status))
}

// readInput 从查询参数或第一条消息读取输入
func (h *StreamHandler) readInput(r *http.Request, conn *websocket.Conn) (string, error) {
	input := r.URL.Query().Get("input")
	if input == "" {
		ctx, cancel := context.WithTimeout(r.Context(), h.readTimeout)
		defer cancel()

		var req api.RunRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				return "", err
			}
			return "", types.NewError(types.ErrInvalidRequest, "expected {\"input\": \"...\"} message").WithCause(err)
		}
		input = req.Input
	}
	if apiErr := validateInput(input); apiErr != nil {
		return "", apiErr
	}
	return input, nil
}

func (h *StreamHandler) writeEvent(ctx context.Context, conn *websocket.Conn, event api.StreamEvent) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, event)
}

func errorDetail(err *types.Error) *api.ErrorDetail {
	return &api.ErrorDetail{
		Code:      string(err.Code),
		Message:   err.Message,
		Retryable: err.Retryable,
	}
}

// stateErrorDetail 从终态元数据提取错误码与原因
func stateErrorDetail(state *agent.WorkflowState) *api.ErrorDetail {
	code, _ := state.Metadata["error_code"].(string)
	if code == "" {
		code = string(types.ErrAgentExecution)
	}
	return &api.ErrorDetail{Code: code, Message: state.ErrorMessage()}
}
