// 版权所有 2024 AgentRelay Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 维护 SQL 检查点存储的表结构。

迁移脚本按方言放在 migrations/{postgres,mysql,sqlite} 下并通过
embed.FS 编入二进制，由 golang-migrate 执行：

  - 000001 创建 checkpoints 表及 (thread_id, step) 唯一索引；
  - 000002 增加 created_at 索引，供线程列表按更新时间排序。

DefaultMigrator 实现 Migrator 接口（Up、Down、DownAll、Steps、Goto、
Force、Version、Status、Info），ctx 取消时向 golang-migrate 发送
GracefulStop。sqlite 走纯 Go 的 modernc 驱动，不依赖 cgo；
internal/database 打开的同一文件可以直接被 gorm 使用。

NewMigratorFromDatabaseConfig 供 serve 在 database.auto_migrate 打开时
调用；NewMigratorFromURL 与 CLI 支撑 agentrelay migrate 子命令。
*/
package migration
