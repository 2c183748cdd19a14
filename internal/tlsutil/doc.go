// Package tlsutil 集中管理出站 HTTP 客户端（OpenAI、ElevenLabs、Google）
// 与服务端监听、Redis 连接的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
