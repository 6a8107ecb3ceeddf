// Package config 提供 AgentRelay 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序合并，
// 环境变量默认使用 AGENTRELAY 前缀。声明式 Agent 只能在文件中配置，
// 运行时修改配置文件后由 Reloader 同步到注册表，
// 其余配置段的变更只会记录为需要重启。
package config
