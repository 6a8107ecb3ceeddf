// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentRelay 服务端与命令行入口。

# 概述

cmd/agentrelay 装配引擎、检查点存储与 HTTP 服务。serve 子命令对外提供
同步运行、WebSocket 流式运行、会话历史与交接图查询；其余子命令在本地
直接驱动同一个引擎，结果写到 stdout，日志写到 stderr。

# 核心类型

  - app        — 一次进程生命周期内的依赖集合（存储后端、注册表、引擎）
  - Server     — chi 路由、API 与 Metrics 双端口、配置热重载
  - Middleware — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、run、threads、history、graph、migrate、health、version
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    RequestLogger、Metrics、CORS、JWTAuth、RateLimiter（租户或 IP，
    拒绝时带 Retry-After）。指标与 span 名按 chi 路由模板打标签
  - 配置热重载：文件变更时同步声明式 Agent，失败回滚
  - 检查点后端：memory、file、redis、sql（可自动迁移）、mongo
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
