// Copyright 2026 Mogul Design Agency. All rights reserved.

/*
Package orchestrator 负责单次对话请求的完整流程。

流程：

  - 护栏检查最新一条用户消息，拒绝时直接返回固定回复，不调用上游
  - 在对话前加入系统提示（语音渠道追加语音提示），按 token 预算裁剪
  - 第一次上游调用广播工具，tool_choice 为 auto
  - 模型要求工具时执行全部工具调用，再发起一次不带工具的调用
  - 所有错误经 MapError 转换为 *types.Error，熔断打开与重试耗尽映射为 503，
    上游硬错误映射为 502

每次上游调用都会创建一个 llm.completion span，并通过 Recorder 上报指标。
*/
package orchestrator
