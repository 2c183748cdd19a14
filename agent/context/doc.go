/*
包 context 管理发往模型的对话上下文：按 token 预算裁剪历史、
生成简短摘要、校验消息，以及带自动裁剪的会话缓冲。

# 裁剪规则

WindowManager.Trim 始终保留系统消息（PreserveSystem）与最近
PreserveRecent 条非系统消息，然后从新到旧尽量加入更早的消息，
遇到第一条放不下的消息即停止，输出保持时间顺序：
系统消息、保留下来的旧消息、最近消息。

预算上限为 MaxTokens；未设置时为模型上下文长度减去 4096 个
回复预留 token，未知模型按 8192 计算。消息数组的 3 个 token
开销只计一次，其余按单条消息计价。

# 其他能力

  - Summarize：从用户消息提取最多 5 个话题片段。
  - ValidateMessage / ValidateMessages：角色、空内容、超长、tool_call_id。
  - Buffer：线程安全的会话缓冲，按条数与 token 数从头部淘汰。
*/
package context
