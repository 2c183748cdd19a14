// Copyright 2026 Mogul Design Agency. All rights reserved.

/*
包 database 负责打开关系型数据库并管理 GORM 连接池。

# 概述

Open 根据驱动名（postgres / mysql / sqlite）选择 GORM 方言并建立连接，
sqlite 使用纯 Go 的 glebarez 驱动，无需 CGO。PoolManager 在此之上
统一设置连接池参数，后台定时探活，并提供带退避重试的事务执行。

客户资料、会话笔记与聊天日志的 GormStore（internal/store）通过
PoolManager 访问数据库。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、Stats()、
    WithTransaction()、WithTransactionRetry()、Close()。
  - PoolConfig：连接池配置，Validate() 校验取值。
  - PoolStats：友好格式的连接池统计。
*/
package database
