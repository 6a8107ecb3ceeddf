package types

import "encoding/json"

// ToolSchema 暴露给 Agent 的工具描述，Parameters 是 JSON Schema。
// 交接工具 transfer_to_<Name> 也以这种形式出现在 Agent 的工具列表里。
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}
