package api

import (
	"time"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
)

// =============================================================================
// 会话运行类型
// =============================================================================

// RunRequest 启动一个会话。
// @Description 会话运行请求
type RunRequest struct {
	// 任务输入，成为会话的第一条用户消息
	Input string `json:"input" example:"Build a CLI that prints the weather" binding:"required"`
}

// RunResponse 会话运行结果。
// @Description 会话运行结果
type RunResponse struct {
	// 会话线程 ID
	ThreadID string `json:"thread_id" example:"3f0c2c1e-6f1c-4d0e-9a55-2d1f6f4e7a10"`
	// 终止状态（completed、error）
	Status agent.Status `json:"status" example:"completed"`
	// 执行的回合数
	Steps int `json:"steps" example:"3"`
	// 最后活跃的 Agent
	ActiveAgent string `json:"active_agent,omitempty" example:"Coder"`
	// 错误原因（status 为 error 时）
	Error string `json:"error,omitempty"`
	// 会话产物
	Artifacts map[string]any `json:"artifacts,omitempty"`
	// 完整对话
	Messages []Message `json:"messages"`
	// 耗时
	Duration string `json:"duration" example:"1.2s"`
}

// NewRunResponse 从终态构造响应
func NewRunResponse(state *agent.WorkflowState, took time.Duration) RunResponse {
	return RunResponse{
		ThreadID:    state.ThreadID,
		Status:      state.Status,
		Steps:       state.Step,
		ActiveAgent: state.ActiveAgent,
		Error:       state.ErrorMessage(),
		Artifacts:   state.Artifacts,
		Messages:    FromMessages(state.Messages),
		Duration:    took.String(),
	}
}

// =============================================================================
// 流式类型
// =============================================================================

// StreamEventType 流事件类型
type StreamEventType string

const (
	// StreamEventStarted 会话已创建，携带 thread_id
	StreamEventStarted StreamEventType = "started"
	// StreamEventStep 一个回合结束后的快照
	StreamEventStep StreamEventType = "step"
	// StreamEventDone 会话到达终态
	StreamEventDone StreamEventType = "done"
	// StreamEventError 请求无法执行
	StreamEventError StreamEventType = "error"
)

// StreamEvent websocket 上的一条 JSON 消息。
// @Description 流式会话事件
type StreamEvent struct {
	Type     StreamEventType `json:"type" example:"step"`
	ThreadID string          `json:"thread_id,omitempty"`
	Step     int             `json:"step,omitempty"`
	Agent    string          `json:"agent,omitempty"`
	Status   agent.Status    `json:"status,omitempty"`
	// 本回合新增的消息
	Messages []Message    `json:"messages,omitempty"`
	Error    *ErrorDetail `json:"error,omitempty"`
}

// =============================================================================
// 消息类型
// =============================================================================

// Message 对话消息。
// @Description 对话消息结构
type Message struct {
	// 消息角色（system、user、assistant、tool）
	Role string `json:"role" example:"assistant"`
	// 消息内容
	Content string `json:"content,omitempty"`
	// 作者 Agent，或 tool 消息的工具名
	Name string `json:"name,omitempty" example:"Planner"`
	// 工具调用
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// 对应的工具调用 ID（tool 消息）
	ToolCallID string `json:"tool_call_id,omitempty"`
	// 时间戳
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ToolCall 工具调用。
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// FromMessages 转换领域消息
func FromMessages(msgs []types.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		am := Message{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
			Timestamp:  m.Timestamp,
		}
		for _, tc := range m.ToolCalls {
			am.ToolCalls = append(am.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Name, Arguments: string(tc.Arguments)})
		}
		out = append(out, am)
	}
	return out
}

// =============================================================================
// 历史与 Agent 类型
// =============================================================================

// ThreadSummary 持久化会话概要。
// @Description 会话概要
type ThreadSummary struct {
	ThreadID  string       `json:"thread_id"`
	Status    agent.Status `json:"status" example:"completed"`
	Steps     int          `json:"steps" example:"3"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Checkpoint 一个回合结束后的检查点。
// @Description 检查点
type Checkpoint struct {
	Step        int            `json:"step"`
	Status      agent.Status   `json:"status"`
	ActiveAgent string         `json:"active_agent,omitempty"`
	Messages    []Message      `json:"messages"`
	Artifacts   map[string]any `json:"artifacts,omitempty"`
}

// NewCheckpoint 从快照构造检查点
func NewCheckpoint(state *agent.WorkflowState) Checkpoint {
	return Checkpoint{
		Step:        state.Step,
		Status:      state.Status,
		ActiveAgent: state.ActiveAgent,
		Messages:    FromMessages(state.Messages),
		Artifacts:   state.Artifacts,
	}
}

// AgentInfo 图中一个节点。
// @Description Agent 信息
type AgentInfo struct {
	Name        string   `json:"name" example:"Planner"`
	Description string   `json:"description,omitempty"`
	Targets     []string `json:"handoff_targets,omitempty"`
	Tools       []string `json:"tools,omitempty"`
	// 构建失败时以 passthrough 运行
	Substituted bool   `json:"substituted,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// =============================================================================
// 错误类型
// =============================================================================

// ErrorDetail 错误详情。
type ErrorDetail struct {
	Code      string `json:"code" example:"INVALID_REQUEST"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}
