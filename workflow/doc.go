// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package workflow 提供多 Agent 动态交接的编排与执行引擎。

# 概述

workflow 包把 agent.Registry 中注册的 Agent 编译为一张运行时决定边的图：
每个 Agent 一个节点，每个节点都有指向其余所有节点及 END 的条件边，
具体走哪条边由 Router 在每个回合结束后根据共享状态决定。

# 核心接口与类型

  - Router        — 固定优先级的路由链（终止 / 入口 / 结构化交接 /
    文本 transfer_to_X / 完成标记 / 继续 / 返回上一个 / 兜底 / END）
  - RouteDecision — 单次路由结果，携带产生它的规则编号
  - Builder       — 将 Registry 编译为 Graph，按注册表版本缓存
  - Graph         — 编译后的不可变图，可导出为 YAML / JSON
  - Engine        — 会话管理：Run、Stream、RunBatch、历史查询
  - Stream        — 惰性、有限、不可重启的快照序列（iter.Seq）
  - Tracer        — 会话与回合追踪接口（Nop / Log / Multi / OTel）

# 主要能力

  - 初始化失败的 Agent 以 PassthroughAgent 替代，编译不中断
  - 空注册表编译为单个错误节点，运行时返回 error 状态而非 Go error
  - 每回合写入 checkpoint（thread id, step），持久化失败只记录不中断
  - Agent 错误与 panic 被捕获并转换为 status=error
  - MaxSteps 硬上限保证有环图也必然终止
*/
package workflow
