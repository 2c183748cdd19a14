/*
包 llm 定义对话代理与上游大语言模型之间的统一接入层。

# 核心类型

  - [Provider]：上游适配接口，提供 Completion / HealthCheck / Name
  - [ChatRequest] / [ChatResponse]：单次调用的输入与输出
  - [Error]：统一错误，Code 对齐 HTTP 状态，Retryable 决定是否重试

# 弹性包装

[ResilientProvider] 在任意 Provider 外层叠加重试（llm/retry）与熔断
（llm/circuitbreaker）。每次尝试都经过熔断器；熔断打开时返回
circuitbreaker.ErrCircuitOpen，重试器不会重试该错误。

# 子包

  - providers / providers/openai：OpenAI Chat Completions 适配
  - tools：内置工具（客户查询、备注、预约）与参数校验执行器
  - tokenizer：Token 计数，用于上下文窗口裁剪
  - speech：ElevenLabs 与 Google 的 TTS/STT，带降级链
*/
package llm
