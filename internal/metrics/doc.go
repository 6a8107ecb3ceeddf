// 版权所有 2024 AgentRelay Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、会话引擎与数据库三个维度。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标。它实现 workflow.Tracer、
    workflow.RouteObserver 与 workflow.SideChannelObserver，
    通过 workflow.WithTracer 挂到 Engine 上即可采集会话指标。

# 主要能力

  - HTTP 指标：请求总数、请求耗时与响应体大小。route 标签取
    chi 路由模板（/v1/threads/{id}），状态码归类为 2xx/4xx 等。
  - 会话指标：开始/结束计数、活跃会话 Gauge。
  - 回合指标：按 agent/status 计数，回合耗时 Histogram。
  - 路由指标：按优先级规则与 from/to 计数。
  - 旁路错误：被引擎吞掉的追踪与持久化失败，按错误码计数。
  - 连接池指标：检查点数据库 open/in_use/idle 连接数 Gauge，
    由 database.Pool 的探活循环定期上报。
*/
package metrics
