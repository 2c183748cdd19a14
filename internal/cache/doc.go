/*
Package cache 提供基于 Redis 的缓存管理，目前用于缓存客户查询结果。

Manager 封装 go-redis 客户端：所有键自动加上配置的前缀，
未命中返回 ErrCacheMiss，GetJSON/SetJSON 负责序列化。
HealthCheckInterval 大于 0 时后台定时 Ping，Healthy 反映最近一次结果，
Close 会停止后台循环并释放连接。
*/
package cache
