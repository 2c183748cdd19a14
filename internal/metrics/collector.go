package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	retryAttempts      *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec

	// 对话与安全
	chatRequests       *prometheus.CounterVec
	guardrailDecisions *prometheus.CounterVec
	toolExecutions     *prometheus.CounterVec
	toolDuration       *prometheus.HistogramVec

	// 语音
	speechRequests *prometheus.CounterVec
	speechDuration *prometheus.HistogramVec

	// 缓存与数据库
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	storeOps          *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到 reg（nil 时使用默认 registry）
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.httpRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	c.httpRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "http_request_duration_seconds",
		Help: "HTTP request duration in seconds", Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
	c.httpResponseSize = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "http_response_size_bytes",
		Help: "HTTP response size in bytes", Buckets: prometheus.ExponentialBuckets(100, 10, 8),
	}, []string{"method", "path"})

	c.llmRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "llm_requests_total",
		Help: "Total number of upstream LLM calls",
	}, []string{"provider", "model", "status"})
	c.llmRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "llm_request_duration_seconds",
		Help: "Upstream LLM call duration in seconds", Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider", "model"})
	c.llmTokensUsed = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "llm_tokens_used_total",
		Help: "Total number of tokens used",
	}, []string{"provider", "model", "type"}) // type: prompt, completion
	c.retryAttempts = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "retry_attempts_total",
		Help: "Retries scheduled after a retryable failure",
	}, []string{"operation"})
	c.breakerState = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"name"})
	c.breakerTransitions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions",
	}, []string{"name", "from", "to"})

	c.chatRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "chat_requests_total",
		Help: "Conversation requests by channel and outcome",
	}, []string{"channel", "outcome"})
	c.guardrailDecisions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "guardrail_decisions_total",
		Help: "Guardrail decisions by decision and category",
	}, []string{"decision", "category"})
	c.toolExecutions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "tool_executions_total",
		Help: "Tool executions by tool and status",
	}, []string{"tool", "status"})
	c.toolDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "tool_execution_duration_seconds",
		Help: "Tool execution duration in seconds", Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	c.speechRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "speech_requests_total",
		Help: "Speech synthesis and transcription requests",
	}, []string{"kind", "provider", "status"})
	c.speechDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "speech_request_duration_seconds",
		Help: "Speech request duration in seconds", Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"kind", "provider"})

	c.cacheHits = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "cache_hits_total",
		Help: "Total number of cache hits",
	}, []string{"cache_type"})
	c.cacheMisses = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "cache_misses_total",
		Help: "Total number of cache misses",
	}, []string{"cache_type"})
	c.dbConnectionsOpen = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_connections_open",
		Help: "Number of open database connections",
	}, []string{"database"})
	c.dbConnectionsIdle = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_connections_idle",
		Help: "Number of idle database connections",
	}, []string{"database"})
	c.storeOps = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "store_operation_duration_seconds",
		Help: "CRM store operation duration in seconds", Buckets: prometheus.DefBuckets,
	}, []string{"store", "operation", "status"})

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 LLM 与弹性
// =============================================================================

// RecordLLMRequest 记录一次上游调用（含重试）
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordRetry 记录一次重试
func (c *Collector) RecordRetry(operation string) {
	c.retryAttempts.WithLabelValues(operation).Inc()
}

// RecordBreakerTransition 记录熔断器状态变化
func (c *Collector) RecordBreakerTransition(name, from, to string) {
	c.breakerTransitions.WithLabelValues(name, from, to).Inc()
	c.breakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half_open", "half-open":
		return 2
	}
	return 0
}

// =============================================================================
// 💬 对话
// =============================================================================

// RecordChat 记录一次对话请求的结果
func (c *Collector) RecordChat(channel, outcome string) {
	c.chatRequests.WithLabelValues(channel, outcome).Inc()
}

// RecordGuardrail 记录护栏结论，category 可以为空
func (c *Collector) RecordGuardrail(decision, category string) {
	if category == "" {
		category = "none"
	}
	c.guardrailDecisions.WithLabelValues(decision, category).Inc()
}

// RecordToolExecution 签名与 tools.ExecutionObserver 一致
func (c *Collector) RecordToolExecution(tool, status string, duration time.Duration) {
	c.toolExecutions.WithLabelValues(tool, status).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordSpeech kind 为 tts 或 stt
func (c *Collector) RecordSpeech(kind, provider, status string, duration time.Duration) {
	c.speechRequests.WithLabelValues(kind, provider, status).Inc()
	c.speechDuration.WithLabelValues(kind, provider).Observe(duration.Seconds())
}

// =============================================================================
// 💾 缓存与存储
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordStoreOperation 记录 CRM 存储操作
func (c *Collector) RecordStoreOperation(store, operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.storeOps.WithLabelValues(store, operation, status).Observe(duration.Seconds())
}

// statusCode 将 HTTP 状态码归类
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
