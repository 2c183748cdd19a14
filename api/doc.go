// Package api 定义 HTTP 接口的请求与响应结构，并用 validator 做入参校验。
//
// 接口一览：
//
//	GET  /healthz      服务状态、熔断器状态、依赖可用性
//	GET  /config       {calLink, brandColor}
//	POST /v1/chat      {messages:[...]} -> {message}
//	GET  /v1/chat/ws   websocket，每个文本帧是一次聊天请求
//	POST /v1/tts       {text} -> audio/mpeg
//	POST /v1/stt       multipart audio -> {text, confidence}
//	POST /twilio/sms   Twilio 表单 -> TwiML
//
// 认证使用 X-Session-Token 或 Authorization: Bearer mda_...，见 internal/auth。
package api
