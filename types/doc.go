// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentrelay 引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、workflow、
persistence、api 等上层模块提供统一的类型契约，避免循环依赖。

# 核心类型

  - Message / Role    — 会话消息（Role、Content、Name、Metadata）
  - ToolCall          — Agent 在回合中发起的工具调用
  - ToolSchema        — 工具定义（name + description + JSON Schema parameters）
  - Caller            — 调用方身份（租户、用户、角色）
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - Context 传播：WithCaller / CallerFrom / TenantID
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 常用错误构造：NewConfigurationError / NewAgentExecutionError
*/
package types
