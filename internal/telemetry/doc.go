// Package telemetry 负责 OpenTelemetry SDK 的启动与关闭。
//
// Init 在启用时安装全局 TracerProvider / MeterProvider（OTLP gRPC 导出），
// 资源属性携带服务名、构建版本与主机名；关闭时返回空 Providers，
// 不连接任何外部服务。EngineTracer 让会话引擎的 span 与 HTTP 中间件的
// span 共用同一组导出器。
package telemetry
