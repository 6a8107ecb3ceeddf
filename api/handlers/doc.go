// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentRelay HTTP API 的请求处理器实现。

# 概述

handlers 包实现会话运行、流式推送、历史查询、图导出与健康检查端点。
所有 Handler 遵循标准 net/http 接口，依赖 Engine 接口而非具体引擎，
通过 Swagger 注解生成 API 文档。

# 核心类型

  - RunHandler     — POST /v1/runs，同步运行会话到终态
  - StreamHandler  — GET /v1/runs/stream，WebSocket 逐回合推送快照
  - ThreadHandler  — 会话列表、检查点与删除（chi 路径参数 {id}）
  - AgentHandler   — Agent 列表与图导出（JSON / YAML）
  - HealthHandler  — /health、/healthz、/ready、/version
  - Response       — 统一 JSON 响应结构（success + data + error + timestamp）
  - FuncCheck      — 以函数实现的可插拔健康检查

# 错误映射

Agent 失败不是 HTTP 错误：会话以 status=error 正常返回。
图编译失败返回 500，存储的 ErrNotFound 映射为 404，
ErrStoreClosed 映射为 503。
*/
package handlers
