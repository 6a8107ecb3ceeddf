// Package tlsutil 集中维护 agentrelay 的 TLS 设置：API 端口的 HTTPS、
// Redis 检查点连接和 health 子命令的客户端共用同一份加固配置
// （最低 TLS 1.2，TLS 1.2 下只允许 AEAD 套件）。
package tlsutil
