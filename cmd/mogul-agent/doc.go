// Copyright 2026 Mogul Design Agency. All rights reserved.

/*
Package main 提供 mogul-agent 服务端程序入口。

# 概述

cmd/mogul-agent 组装对话编排器、护栏、工具、语音与存储，并通过单个
HTTP 端口对外提供聊天、websocket、TTS/STT、Twilio SMS、健康检查与
Prometheus 指标。

# 核心类型

  - Server     ：组装依赖、注册路由并管理优雅关闭
  - Middleware ：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、migrate、token（会话令牌 / mda_ API key）、health、version
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、CORS、
    OTelTracing、MetricsMiddleware、Auth、RateLimiter（按路径分组）
  - 优雅关闭：停止 HTTP → 排空后台写入 → 关闭存储与缓存 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
