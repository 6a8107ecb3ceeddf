package types

import (
	"encoding/json"
	"maps"
	"time"
)

// Role 消息发出方
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall Agent 在自己的回合里发起的一次工具调用，Arguments 保持原始 JSON
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message 共享会话中的一条记录。
// assistant 消息的 Name 是作者 Agent，tool 消息的 Name 是工具名。
type Message struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Now 消息时间戳：UTC 且去掉单调时钟，JSON 往返后仍然相等
func Now() time.Time {
	return time.Now().UTC().Round(0)
}

func stamped(m Message) Message {
	m.Timestamp = Now()
	return m
}

// NewSystemMessage 系统消息，引擎用它记录配置类错误
func NewSystemMessage(content string) Message {
	return stamped(Message{Role: RoleSystem, Content: content})
}

// NewUserMessage 用户输入
func NewUserMessage(content string) Message {
	return stamped(Message{Role: RoleUser, Content: content})
}

// NewAssistantMessage agent 名下的一条发言
func NewAssistantMessage(agent, content string) Message {
	return stamped(Message{Role: RoleAssistant, Content: content, Name: agent})
}

// NewToolMessage 对 callID 那次调用的回执
func NewToolMessage(callID, tool, content string) Message {
	return stamped(Message{Role: RoleTool, Content: content, Name: tool, ToolCallID: callID})
}

// WithMetadata 返回设置了 key 的副本，原消息的 Metadata 不受影响
func (m Message) WithMetadata(key string, value any) Message {
	md := maps.Clone(m.Metadata)
	if md == nil {
		md = make(map[string]any, 1)
	}
	md[key] = value
	m.Metadata = md
	return m
}

// HasToolCalls assistant 消息是否携带工具调用
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }
