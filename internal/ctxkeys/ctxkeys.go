// Package ctxkeys 定义请求级 context 键，供中间件写入、处理器与日志读取。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	callerIDKey  contextKey = "caller_id"
	userIDKey    contextKey = "user_id"
	channelKey   contextKey = "channel"
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func getString(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) { return getString(ctx, requestIDKey) }

// WithCallerID 设置滥用检测使用的调用方标识（用户、手机号或客户端 IP）
func WithCallerID(ctx context.Context, id string) context.Context {
	return withString(ctx, callerIDKey, id)
}

// CallerID 获取调用方标识
func CallerID(ctx context.Context) (string, bool) { return getString(ctx, callerIDKey) }

// WithUserID 设置已认证用户
func WithUserID(ctx context.Context, id string) context.Context {
	return withString(ctx, userIDKey, id)
}

// UserID 获取已认证用户
func UserID(ctx context.Context) (string, bool) { return getString(ctx, userIDKey) }

// WithChannel 设置请求渠道（web/ws/sms/voice）
func WithChannel(ctx context.Context, channel string) context.Context {
	return withString(ctx, channelKey, channel)
}

// Channel 获取请求渠道
func Channel(ctx context.Context) (string, bool) { return getString(ctx, channelKey) }
