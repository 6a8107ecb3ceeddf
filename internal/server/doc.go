// 版权所有 2024 AgentRelay Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动、
基于 context 的阻塞运行与优雅关闭。

# 核心类型

  - Manager：HTTP 服务器管理器，生命周期 idle → serving → stopped，
    不可重启。agentrelay serve 为 API 与 metrics 各创建一个。
  - Config：服务器配置，包含监听地址、读写超时、空闲超时、
    最大请求头大小、优雅关闭超时与可选 TLS。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 阻塞运行：Run 在 ctx 取消或服务异常后执行优雅关闭，
    配合 signal.NotifyContext 处理 SIGINT/SIGTERM。
  - TLS：ConfigFrom 在配置了证书与私钥时通过 tlsutil 加载加固配置。
  - 流式会话：请求 context 派生自内部 base context，Shutdown 开始时
    取消，被劫持的 websocket 连接也能及时结束。
  - 状态查询：IsRunning/Addr 返回运行状态与实际监听地址（支持 :0）。
  - 错误：ErrAlreadyStarted、ErrClosed 可用 errors.Is 判断。
*/
package server
