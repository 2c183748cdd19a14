/*
Package types 提供 Mogul Agent 后端的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、api 等上层模块
提供统一的类型契约。

# 核心类型

  - Role / Message  ：对话消息，Role 为枚举，Content 为文本或多段内容的变体
  - Content         ：文本或 ContentPart 列表（text / image_url）
  - ToolCall        ：模型发起的工具调用（name + JSON 参数原文）
  - ToolSchema      ：工具定义（name + description + JSON Schema parameters）
  - ToolResult      ：工具执行结果
  - Error / ErrorCode：结构化错误，含 HTTP 状态码、Retryable、Detail 标记
*/
package types
