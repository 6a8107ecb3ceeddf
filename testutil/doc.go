// Copyright 2026 AgentRelay Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 AgentRelay 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与基准测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。所有测试应优先使用此包
中的工具函数和 Mock 实现。

# 核心能力

  - 上下文: TestContext 随测试结束取消并带 DefaultTimeout 上限，
    CancelledContext 用于验证取消路径
  - 快照消费: CollectStates / TakeStates 消费 Engine.Stream 的快照序列，
    AgentsOf 提取 assistant 消息的发言顺序
  - 断言: AssertMessagesEqual 按角色、作者与内容比较消息；
    AssertHistory 检查检查点历史的线程归属与步号连续性

# 子包

  - testutil/mocks: RecordingTracer（记录会话事件，可注入错误与 panic）、
    MockCheckpointStore（包装内存存储，可按操作注入错误）
  - testutil/fixtures: StubAgent 工厂，包括 Say、Script、Handoff、
    TextTransfer、Complete、Fail、Panic、Cycle 以及 Registry 辅助

# 使用示例

	tracer := mocks.NewRecordingTracer()
	engine, _ := workflow.NewEngine(fixtures.Registry(
		fixtures.Handoff("Planner", "Coder", "plan ready"),
		fixtures.Complete("Coder", "done"),
	), workflow.DefaultConfig(), workflow.WithTracer(tracer))
	state, err := engine.Run(testutil.TestContext(t), "build a CLI")
	require.NoError(t, err)
*/
package testutil
