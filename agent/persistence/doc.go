// 版权所有 2024 AgentRelay Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供会话检查点（Checkpoint）的持久化存储抽象及多后端实现。

# 概述

引擎在每个回合结束后，把 WorkflowState 的快照按 (thread id, step) 写入
检查点存储；LoadHistory 按 step 顺序回放同一线程的全部快照，用于
"时间旅行"调试与历史查询。不同线程之间的写入天然分区，互不冲突。

# 核心接口

  - Store: 所有存储的基础接口，提供 Close 和 Ping 健康检查。
  - CheckpointStore: Save / LoadHistory / ListThreads / DeleteThread。
    同一 (thread id, step) 重复写入时覆盖旧快照。

# 后端实现

  - Memory: 内存实现，适合开发与测试，重启后数据丢失。
  - File: 每个线程一个 JSON 文档（消息列表、最终状态、产物与逐步检查点），
    临时文件 + rename 原子写入，适合单节点部署。
  - Redis: Hash 保存逐步快照，Sorted Set 维护线程更新时间索引，Pipeline 批量写入。
  - SQL: 基于 gorm 的 checkpoints 表，(thread_id, step) 唯一索引 + upsert，
    表结构由 internal/migration 管理。
  - Mongo: 每个检查点一个文档，ReplaceOne upsert。

# 使用方式

	store, err := persistence.NewCheckpointStore(config, persistence.Backends{DB: db})
	err = store.Save(ctx, threadID, step, state)
	history, err := store.LoadHistory(ctx, threadID)
*/
package persistence
