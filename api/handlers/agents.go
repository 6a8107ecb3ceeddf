package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/api"
	"github.com/BaSui01/agentrelay/types"
)

// =============================================================================
// 🤖 Agent 与图 Handler
// =============================================================================

// AgentHandler 暴露已编译的图
type AgentHandler struct {
	engine Engine
	logger *zap.Logger
}

// NewAgentHandler 创建 Agent 处理器
func NewAgentHandler(engine Engine, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{
		engine: engine,
		logger: logger.With(zap.String("handler", "agents")),
	}
}

// HandleListAgents 处理 GET /v1/agents
// @Summary 列出 Agent
// @Description 按注册顺序列出图中的节点，构建失败的 Agent 标记为 substituted
// @Tags Agent
// @Produce json
// @Success 200 {object} Response{data=[]api.AgentInfo} "Agent 列表"
// @Failure 500 {object} Response "图编译失败"
// @Security BearerAuth
// @Router /v1/agents [get]
func (h *AgentHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	g, err := h.engine.Graph(r.Context())
	if err != nil {
		WriteFailure(w, r, err, h.logger)
		return
	}

	desc := g.Describe()
	out := make([]api.AgentInfo, 0, len(desc.Nodes))
	for _, n := range desc.Nodes {
		out = append(out, api.AgentInfo{
			Name:        n.Name,
			Description: n.Description,
			Targets:     n.Targets,
			Tools:       n.Tools,
			Substituted: n.Substituted,
			Reason:      n.Reason,
		})
	}
	WriteSuccess(w, out)
}

// HandleGraph 处理 GET /v1/graph
// @Summary 导出图
// @Description 导出编译后的图结构，format=yaml 时返回 YAML 文本
// @Tags Agent
// @Produce json
// @Produce application/yaml
// @Param format query string false "json 或 yaml" default(json)
// @Success 200 {object} Response{data=workflow.GraphDescription} "图结构"
// @Failure 400 {object} Response "不支持的格式"
// @Security BearerAuth
// @Router /v1/graph [get]
func (h *AgentHandler) HandleGraph(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "yaml" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "format must be json or yaml"), h.logger)
		return
	}

	g, err := h.engine.Graph(r.Context())
	if err != nil {
		WriteFailure(w, r, err, h.logger)
		return
	}
	desc := g.Describe()

	if format == "yaml" {
		out, err := desc.ToYAML()
		if err != nil {
			WriteFailure(w, r, err, h.logger)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out))
		return
	}
	WriteSuccess(w, desc)
}
