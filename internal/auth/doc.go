// Package auth 实现会话令牌（HS256 JWT，默认 7 天有效）与 mda_ 前缀 API Key 的认证。
package auth
