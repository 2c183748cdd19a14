/*
包 migration 管理客户、会话笔记与聊天日志表的 Schema 版本，
基于 golang-migrate，支持 PostgreSQL、MySQL 与 SQLite。

SQL 文件通过 embed 内嵌在 migrations/<dialect>/ 下，命名为
000001_name.up.sql / 000001_name.down.sql。

  - Migrator / DefaultMigrator：Up、Down、DownAll、Steps、Goto、Force、
    Version、Status、Info。
  - CLI：`mogul-agent migrate` 子命令的终端输出。
  - DatabaseURL / NewMigratorFromDatabaseConfig：从应用配置得到连接串，
    运行期的 GORM 连接也使用同一个连接串。
*/
package migration
