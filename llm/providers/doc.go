// Copyright 2026 Mogul Design Agency. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供上游模型服务商的公共适配能力，是具体 Provider 实现
（openai 子包）与语音服务（llm/speech）共享的基础层。

# 核心类型

  - BaseProviderConfig：所有 Provider 共享的基础配置（APIKey、BaseURL、Model、Timeout）
  - OpenAIConfig      ：OpenAI Provider 配置（Organization）

# 核心函数

  - MapHTTPError    ：将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - ReadErrorMessage：从错误响应体中提取可读消息
  - ChooseModel     ：按优先级选择模型（请求 > 默认 > 兜底）
  - SafeCloseBody   ：安全关闭响应体
*/
package providers
