// Copyright 2026 Mogul Design Agency. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 openai 基于 github.com/sashabaranov/go-openai 实现 Chat Completions
Provider，负责消息/工具格式转换与错误语义映射。

# 错误映射

  - 429 / 5xx / 网络错误 / 超时：可重试（交给 llm.ResilientProvider）
  - 400 / 401 / 403 / quota    ：上游硬错误，不重试
*/
package openai
