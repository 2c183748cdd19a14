package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/moguldesignsjordan/mogul-ai-agent/api/handlers"
	"github.com/moguldesignsjordan/mogul-ai-agent/config"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/auth"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/ctxkeys"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/metrics"
)

// Middleware 类型定义
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串联，第一个在最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// isUIPath /ui 与 /ui/ 下的静态资源
func isUIPath(path string) bool {
	return path == "/ui" || strings.HasPrefix(path, "/ui/")
}

// Recovery panic 恢复中间件
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					reqID, _ := ctxkeys.RequestID(r.Context())
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("request_id", reqID),
						zap.Stack("stack"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					fmt.Fprint(w, `{"error":"internal_error","message":"Internal server error"}`)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// RequestID: X-Request-ID 与 X-Response-Time
// =============================================================================

const maxRequestIDLength = 128

// RequestID 沿用客户端提供的 X-Request-ID（过长则重新生成），写入 context 与响应头，
// 并在响应头写出前补充 X-Response-Time
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if id == "" || len(id) > maxRequestIDLength {
				id = uuid.NewString()
			}

			rw := handlers.NewResponseWriter(w)
			rw.Header().Set("X-Request-ID", id)
			rw.BeforeHeader(func(h http.Header, _ int) {
				h.Set("X-Response-Time", fmt.Sprintf("%.2fms", float64(time.Since(start).Microseconds())/1000))
			})

			next.ServeHTTP(rw, r.WithContext(ctxkeys.WithRequestID(r.Context(), id)))
		})
	}
}

// RequestLogger 请求日志中间件
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			reqID, _ := ctxkeys.RequestID(r.Context())
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.StatusCode),
				zap.Duration("duration", time.Since(start)),
				zap.Int64("bytes", rw.BytesWritten),
				zap.String("request_id", reqID),
				zap.String("client_ip", handlers.ClientIP(r)),
			}
			switch {
			case rw.StatusCode >= 500:
				logger.Error("request", fields...)
			case r.URL.Path == "/healthz" || r.URL.Path == "/metrics":
				logger.Debug("request", fields...)
			default:
				logger.Info("request", fields...)
			}
		})
	}
}

// =============================================================================
// 安全响应头
// =============================================================================

// htmlCSP 仅用于 HTML 页面；内嵌的 Cal.com 预约弹窗需要 frame-src
const htmlCSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://app.cal.com; " +
	"style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; " +
	"connect-src 'self' ws: wss:; frame-src https://cal.com https://app.cal.com"

// SecurityHeaders 为所有响应添加通用安全头；Content-Type 为 text/html 时追加 CSP
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := handlers.NewResponseWriter(w)
			h := rw.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			rw.BeforeHeader(func(h http.Header, _ int) {
				if strings.HasPrefix(h.Get("Content-Type"), "text/html") {
					h.Set("Content-Security-Policy", htmlCSP)
				}
			})
			next.ServeHTTP(rw, r)
		})
	}
}

// =============================================================================
// CORS
// =============================================================================

var corsExposedHeaders = strings.Join([]string{
	"X-Request-ID",
	"X-Response-Time",
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"Retry-After",
	"X-TTS-Provider",
}, ", ")

// CORS 跨域中间件。allowedOrigins 为空时不设置任何 CORS 头；"*" 放行所有来源
func CORS(allowedOrigins []string) Middleware {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			wildcard = true
			continue
		}
		if o != "" {
			originSet[o] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			_, listed := originSet[origin]
			allowed := origin != "" && (listed || wildcard)

			if origin != "" {
				w.Header().Add("Vary", "Origin")
			}
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-Token, X-Request-ID")
				h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
				h.Set("Access-Control-Max-Age", "86400")
				if listed {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// MetricsMiddleware
// =============================================================================

// knownRoutes 已注册的路由，其余路径归为 "other" 以控制标签基数
var knownRoutes = map[string]struct{}{
	"/":            {},
	"/healthz":     {},
	"/version":     {},
	"/config":      {},
	"/metrics":     {},
	"/favicon.ico": {},
	"/v1/chat":     {},
	"/v1/chat/ws":  {},
	"/v1/tts":      {},
	"/v1/stt":      {},
	"/twilio/sms":  {},
}

// normalizePath 把路径映射为低基数的路由标签
//
//	/ui/assets/app.js -> /ui
//	/wp-login.php     -> other
func normalizePath(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	if isUIPath(path) {
		return "/ui"
	}
	return "other"
}

// MetricsMiddleware 记录 HTTP 请求耗时、状态码与响应大小
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)
			collector.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path), rw.StatusCode, time.Since(start), rw.BytesWritten)
		})
	}
}

// =============================================================================
// OTelTracing
// =============================================================================

// OTelTracing 使用全局 TracerProvider 为每个请求创建 server span，
// 并从请求头提取上游 trace context
func OTelTracing() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			route := normalizePath(r.URL.Path)
			ctx, span := otel.Tracer("mogul-agent/http").Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(route),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if reqID, ok := ctxkeys.RequestID(ctx); ok {
				span.SetAttributes(attribute.String("request.id", reqID))
			}

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))
			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.StatusCode))
		})
	}
}

// =============================================================================
// Auth: X-Session-Token 或 Authorization: Bearer mda_...
// =============================================================================

// isPublicPath 无需认证的路径
func isPublicPath(path string) bool {
	switch path {
	case "/", "/healthz", "/config", "/favicon.ico", "/twilio/sms", "/metrics", "/version":
		return true
	}
	return isUIPath(path)
}

// Auth 解析会话令牌或 API key，认证成功时写入 user_id 与 caller_id。
// required 为 false 时匿名请求照常放行，只有 required 时才返回 401
func Auth(authenticator *auth.Authenticator, required bool, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			identity, ok := authenticator.Authenticate(r.Header.Get("X-Session-Token"), r.Header.Get("Authorization"))
			if ok {
				ctx := ctxkeys.WithUserID(r.Context(), identity.UserID)
				ctx = ctxkeys.WithCallerID(ctx, identity.UserID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if required {
				logger.Warn("unauthenticated request rejected",
					zap.String("path", r.URL.Path),
					zap.String("client_ip", handlers.ClientIP(r)),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"error":"unauthorized","message":"Authentication required"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// RateLimiter: 按路径分组、按用户或 IP 计数
// =============================================================================

// visitorTTL 闲置超过该时长的计数器会被清理
const visitorTTL = 3 * time.Minute

// pathLimits 每分钟请求数
type pathLimits struct {
	chat, stt, tts, fallback int
}

func newPathLimits(cfg config.RateLimitConfig) pathLimits {
	def := config.DefaultServerConfig().RateLimit
	pick := func(v, d int) int {
		if v > 0 {
			return v
		}
		return d
	}
	return pathLimits{
		chat:     pick(cfg.ChatPerMinute, def.ChatPerMinute),
		stt:      pick(cfg.STTPerMinute, def.STTPerMinute),
		tts:      pick(cfg.TTSPerMinute, def.TTSPerMinute),
		fallback: pick(cfg.DefaultPerMinute, def.DefaultPerMinute),
	}
}

// forPath 返回分组名与每分钟上限；/v1/chat/ws 与 /v1/chat 共用额度
func (l pathLimits) forPath(path string) (string, int) {
	switch {
	case path == "/v1/chat" || strings.HasPrefix(path, "/v1/chat/"):
		return "chat", l.chat
	case path == "/v1/stt":
		return "stt", l.stt
	case path == "/v1/tts":
		return "tts", l.tts
	}
	return "default", l.fallback
}

// rateLimitExempt 不计入限流的路径
func rateLimitExempt(path string) bool {
	switch path {
	case "/healthz", "/favicon.ico", "/", "/metrics":
		return true
	}
	return isUIPath(path)
}

type visitor struct {
	limiter  *rate.Limiter
	perMin   int
	lastSeen time.Time
}

// RateLimiter 令牌桶限流，桶容量为每分钟上限，按每分钟上限匀速补充。
// ctx 结束时停止后台清理
func RateLimiter(ctx context.Context, cfg config.RateLimitConfig, logger *zap.Logger) Middleware {
	limits := newPathLimits(cfg)
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
	)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				for key, v := range visitors {
					if time.Since(v.lastSeen) > visitorTTL {
						delete(visitors, key)
					}
				}
				mu.Unlock()
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || rateLimitExempt(r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			group, perMin := limits.forPath(r.URL.Path)
			subject := handlers.ClientIP(r)
			if user, ok := ctxkeys.UserID(r.Context()); ok {
				subject = "user:" + user
			}
			key := group + "|" + subject

			now := time.Now()
			mu.Lock()
			v, exists := visitors[key]
			if !exists {
				v = &visitor{
					limiter: rate.NewLimiter(rate.Limit(float64(perMin)/60), perMin),
					perMin:  perMin,
				}
				visitors[key] = v
			}
			v.lastSeen = now
			mu.Unlock()

			res := v.limiter.ReserveN(now, 1)
			delay := res.DelayFrom(now)
			if delay > 0 {
				res.CancelAt(now)
			}

			remaining := int(math.Floor(v.limiter.TokensAt(now)))
			if remaining < 0 {
				remaining = 0
			}
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(v.perMin))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt(now, v).Unix(), 10))

			if delay > 0 {
				retryAfter := int(math.Ceil(delay.Seconds()))
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				logger.Info("rate limit exceeded",
					zap.String("group", group),
					zap.String("subject", subject),
					zap.Int("retry_after", retryAfter),
				)
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":"rate_limit_exceeded","message":"Too many requests","retry_after":%d}`, retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resetAt 令牌桶补满的时间
func resetAt(now time.Time, v *visitor) time.Time {
	missing := float64(v.perMin) - v.limiter.TokensAt(now)
	if missing <= 0 {
		return now
	}
	return now.Add(time.Duration(missing / (float64(v.perMin) / 60) * float64(time.Second)))
}
