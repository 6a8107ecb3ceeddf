// 版权所有 2024 AgentRelay Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理进程内共享的 Redis 连接，供 Redis 检查点存储与
就绪检查共用。

# 核心类型

  - Manager：持有 go-redis 客户端，提供 Client()、Ping()、Stats()、
    Close() 等生命周期方法。
  - Stats：连接池统计（命中、超时、总连接与空闲连接）。

# 主要能力

  - 连接池管理：通过 config.RedisConfig 的 PoolSize 与 MinIdleConns 控制连接复用。
  - TLS：RedisConfig.TLS 为 true 时使用 tlsutil 的加固配置。
  - 健康检查：后台定时 Ping，Close 时停止并等待循环退出。
*/
package cache
