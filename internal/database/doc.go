// 版权所有 2024 AgentRelay Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为 SQL 检查点存储打开 gorm 连接并管理连接池。

# 打开连接

Dialector 按 config.DatabaseConfig.Driver 选择 postgres、mysql 或
sqlite 方言；Open 在此基础上创建 gorm.DB 并包装为 Pool。sqlite
要求 database.name 为文件路径。

# 连接池

Pool 应用 PoolSettings（最大连接数、空闲数与生命周期），并按
ProbeInterval 在后台探活。每次探活成功后把 PoolStats 交给
StatsObserver，serve 命令把它接到 metrics.Collector 的连接数指标；
Ping 同时注册为 /ready 的 database 检查。Close 停止探活后再关闭
底层连接，之后的 Ping 返回 ErrPoolClosed。

表结构不在这里维护，见 internal/migration。
*/
package database
