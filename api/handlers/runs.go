package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/agent/persistence"
	"github.com/BaSui01/agentrelay/api"
	"github.com/BaSui01/agentrelay/types"
	"github.com/BaSui01/agentrelay/workflow"
)

// maxInputLength 单次会话输入上限（字节）
const maxInputLength = 64 * 1024

// Engine 是处理器依赖的引擎能力，*workflow.Engine 满足该接口
type Engine interface {
	Run(ctx context.Context, input string) (*agent.WorkflowState, error)
	Stream(ctx context.Context, input string) (*workflow.Stream, error)
	LoadHistory(ctx context.Context, threadID string) ([]*agent.WorkflowState, error)
	ListThreads(ctx context.Context) ([]persistence.ThreadInfo, error)
	DeleteThread(ctx context.Context, threadID string) error
	Graph(ctx context.Context) (*workflow.Graph, error)
}

var _ Engine = (*workflow.Engine)(nil)

// =============================================================================
// 🏃 会话运行 Handler
// =============================================================================

// RunHandler 同步运行会话
type RunHandler struct {
	engine Engine
	logger *zap.Logger
}

// NewRunHandler 创建会话运行处理器
func NewRunHandler(engine Engine, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{
		engine: engine,
		logger: logger.With(zap.String("handler", "runs")),
	}
}

// HandleRun 处理 POST /v1/runs
// @Summary 运行会话
// @Description 以输入启动会话并运行到终态。Agent 失败体现在 status=error 的结果中，而不是 HTTP 错误
// @Tags 会话
// @Accept json
// @Produce json
// @Param request body api.RunRequest true "会话输入"
// @Success 200 {object} Response{data=api.RunResponse} "会话终态"
// @Failure 400 {object} Response "无效请求"
// @Failure 500 {object} Response "图编译失败"
// @Security BearerAuth
// @Router /v1/runs [post]
func (h *RunHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.RunRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if apiErr := validateInput(req.Input); apiErr != nil {
		WriteError(w, r, apiErr, h.logger)
		return
	}

	start := time.Now()
	state, err := h.engine.Run(r.Context(), req.Input)
	if err != nil {
		WriteFailure(w, r, err, h.logger)
		return
	}

	h.logger.Info("run finished",
		zap.String("thread_id", state.ThreadID),
		zap.String("status", string(state.Status)),
		zap.Int("steps", state.Step),
		zap.Duration("duration", time.Since(start)),
	)
	WriteSuccess(w, api.NewRunResponse(state, time.Since(start)))
}

func validateInput(input string) *types.Error {
	if strings.TrimSpace(input) == "" {
		return types.NewError(types.ErrInvalidRequest, "input is required")
	}
	if len(input) > maxInputLength {
		return types.NewError(types.ErrInvalidRequest, "input is too long")
	}
	return nil
}
