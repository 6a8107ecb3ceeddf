package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/api"
	"github.com/BaSui01/agentrelay/types"
)

// maxThreadIDLength 线程 ID 上限，与检查点表的 thread_id 列一致
const maxThreadIDLength = 64

// =============================================================================
// 🧵 会话历史 Handler
// =============================================================================

// ThreadHandler 会话历史查询与删除
type ThreadHandler struct {
	engine Engine
	logger *zap.Logger
}

// NewThreadHandler 创建会话历史处理器
func NewThreadHandler(engine Engine, logger *zap.Logger) *ThreadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThreadHandler{
		engine: engine,
		logger: logger.With(zap.String("handler", "threads")),
	}
}

// HandleList 处理 GET /v1/threads
// @Summary 列出会话
// @Description 列出持久化的会话，按最近更新时间倒序
// @Tags 历史
// @Produce json
// @Success 200 {object} Response{data=[]api.ThreadSummary} "会话列表"
// @Failure 503 {object} Response "存储不可用"
// @Security BearerAuth
// @Router /v1/threads [get]
func (h *ThreadHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	infos, err := h.engine.ListThreads(r.Context())
	if err != nil {
		WriteFailure(w, r, err, h.logger)
		return
	}

	out := make([]api.ThreadSummary, 0, len(infos))
	for _, info := range infos {
		out = append(out, api.ThreadSummary{
			ThreadID:  info.ThreadID,
			Status:    info.Status,
			Steps:     info.Steps,
			UpdatedAt: info.UpdatedAt,
		})
	}
	WriteSuccess(w, out)
}

// HandleCheckpoints 处理 GET /v1/threads/{id}/checkpoints
// @Summary 会话检查点
// @Description 按回合顺序返回会话的全部检查点
// @Tags 历史
// @Produce json
// @Param id path string true "线程 ID"
// @Success 200 {object} Response{data=[]api.Checkpoint} "检查点"
// @Failure 404 {object} Response "会话不存在"
// @Security BearerAuth
// @Router /v1/threads/{id}/checkpoints [get]
func (h *ThreadHandler) HandleCheckpoints(w http.ResponseWriter, r *http.Request) {
	threadID, ok := h.threadID(w, r)
	if !ok {
		return
	}

	history, err := h.engine.LoadHistory(r.Context(), threadID)
	if err != nil {
		WriteFailure(w, r, err, h.logger)
		return
	}

	out := make([]api.Checkpoint, 0, len(history))
	for _, state := range history {
		out = append(out, api.NewCheckpoint(state))
	}
	WriteSuccess(w, out)
}

// HandleDelete 处理 DELETE /v1/threads/{id}
// @Summary 删除会话
// @Description 删除会话的全部检查点
// @Tags 历史
// @Param id path string true "线程 ID"
// @Success 204 "已删除"
// @Failure 404 {object} Response "会话不存在"
// @Security BearerAuth
// @Router /v1/threads/{id} [delete]
func (h *ThreadHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	threadID, ok := h.threadID(w, r)
	if !ok {
		return
	}

	if err := h.engine.DeleteThread(r.Context(), threadID); err != nil {
		WriteFailure(w, r, err, h.logger)
		return
	}

	h.logger.Info("thread deleted", zap.String("thread_id", threadID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *ThreadHandler) threadID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" || len(id) > maxThreadIDLength {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "invalid thread id"), h.logger)
		return "", false
	}
	return id, true
}
