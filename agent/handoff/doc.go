// 版权所有 2024 AgentRelay Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 handoff 提供智能体间控制权交接的工具合成与信号识别能力。

# 概述

handoff 解决的核心问题是：Agent 如何"请求"把任务交给另一个 Agent，
而由引擎统一"决定"是否交接。本包只负责前者：为每个 Agent 合成
transfer_to_<Name> 工具，并从消息文本中识别交接与完成标记。
真正的状态迁移由 workflow.Router 完成，保证每一次交接可审计。

# 核心模型

  - TransferTool：交接工具，Invoke 仅返回确认串 "transfer_to_B: <reason>"，不修改状态
  - Builder：根据 Agent 声明的 HandoffTargets 合成工具集，未注册或指向自身的目标会被跳过并告警
  - ToolSet：Agent 名称到其可用交接工具的映射
  - TextTransfer：从文本中解析出的交接请求（目标与原因）

# 主要能力

  - 工具合成：只为 A 声明过的目标 B 生成 transfer_to_B，未声明目标的 Agent 不获得任何工具
  - 工具 Schema：参数为必填的 reason 字符串，可直接暴露给模型做函数调用
  - 文本识别：ParseTransfer 返回首个指向已注册 Agent 的 transfer_to_<Name> 标记
  - 完成识别：IsCompletion 识别 "TASK COMPLETE" / "COMPLETED"

# 使用示例

	b := handoff.NewBuilder(logger)
	tools := b.BuildFromAgents([]agent.Agent{planner, architect})
	// tools["Planner"] -> [transfer_to_Architect]
*/
package handoff
