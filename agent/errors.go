package agent

import (
	"errors"
	"fmt"

	"github.com/BaSui01/agentrelay/types"
)

var (
	// ErrDuplicateName 同名 Agent 已注册
	ErrDuplicateName = types.NewError(types.ErrDuplicateName, "agent already registered")

	// ErrNotFound Agent 未注册
	ErrNotFound = types.NewError(types.ErrNotFound, "agent not registered")

	// ErrEmptyName Agent 名称为空
	ErrEmptyName = errors.New("agent name must not be empty")

	// ErrNilAgent 注册了 nil Agent
	ErrNilAgent = errors.New("agent must not be nil")

	// ErrLazyAgent Agent 通过工厂注册，尚未构建
	ErrLazyAgent = errors.New("agent is built lazily at compile time")

	// ErrToolNotBound 调用了未绑定的工具
	ErrToolNotBound = errors.New("tool not bound to agent")
)

// duplicateNameError 返回带名称的 DuplicateName 配置错误
func duplicateNameError(name string) error {
	return types.NewError(types.ErrDuplicateName, fmt.Sprintf("agent %q already registered", name)).
		WithAgent(name)
}

// notFoundError 返回带名称的 NotFound 错误
func notFoundError(name string) error {
	return types.NewError(types.ErrNotFound, fmt.Sprintf("agent %q not registered", name)).
		WithAgent(name)
}
