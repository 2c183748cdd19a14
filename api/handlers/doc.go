/*
Package handlers 提供 Mogul Agent HTTP 接口的请求处理器实现。

# 核心类型

  - ChatHandler   ：POST /v1/chat，校验请求、调用编排器、写聊天记录
  - WSHandler     ：/v1/chat/ws，复用 ChatHandler.Reply 处理每个文本帧
  - SpeechHandler ：/v1/tts（主/兜底 TTS）与 /v1/stt（Google STT）
  - SMSHandler    ：Twilio webhook，回复 TwiML
  - HealthHandler ：/healthz，熔断器状态与依赖探测
  - Response      ：统一 JSON 响应结构（success + data + error + timestamp + request_id）
  - ErrorWriter   ：types.Error → HTTP 状态码，debug 模式下附带 detail
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码，供中间件使用
*/
package handlers
