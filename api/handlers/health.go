package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/moguldesignsjordan/mogul-ai-agent/api"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/circuitbreaker"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// probeTimeout 单次依赖探测超时
const probeTimeout = 3 * time.Second

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthInfo /healthz 中的静态信息
type HealthInfo struct {
	Environment        string
	Model              string
	ProviderConfigured bool
	GuardrailsEnabled  bool
	Version            string
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	info     HealthInfo
	logger   *zap.Logger
	mu       sync.RWMutex
	checks   []HealthCheck
	breakers map[string]circuitbreaker.CircuitBreaker
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(info HealthInfo, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		info:     info,
		logger:   logger.With(zap.String("component", "health")),
		breakers: make(map[string]circuitbreaker.CircuitBreaker),
	}
}

// RegisterCheck 注册依赖探测
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// RegisterBreaker cb 为 nil 时显示为 disabled
func (h *HealthHandler) RegisterBreaker(name string, cb circuitbreaker.CircuitBreaker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.breakers[name] = cb
}

// HandleHealthz 处理 /healthz，依赖并发探测，探测失败只降级不返回 5xx
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	breakers := make(map[string]string, len(h.breakers))
	for name, cb := range h.breakers {
		if cb == nil {
			breakers[name] = "disabled"
			continue
		}
		breakers[name] = cb.State().String()
	}
	h.mu.RUnlock()

	resp := api.HealthResponse{
		Status:             "ok",
		Environment:        h.info.Environment,
		Model:              h.info.Model,
		ProviderConfigured: h.info.ProviderConfigured,
		Breakers:           breakers,
		GuardrailsEnabled:  h.info.GuardrailsEnabled,
		Version:            h.info.Version,
	}

	if len(checks) > 0 {
		resp.Dependencies = h.probe(r.Context(), checks)
		for _, state := range resp.Dependencies {
			if state != "ok" {
				resp.Status = "degraded"
			}
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) probe(ctx context.Context, checks []HealthCheck) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	results := make([]string, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		g.Go(func() error {
			start := time.Now()
			if err := check.Check(gctx); err != nil {
				h.logger.Warn("health check failed",
					zap.String("check", check.Name()),
					zap.Error(err),
					zap.Duration("latency", time.Since(start)),
				)
				results[i] = "unavailable"
				return nil
			}
			results[i] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(checks))
	for i, check := range checks {
		out[check.Name()] = results[i]
	}
	return out
}

// HandleVersion 处理 /version 请求
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, r, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// PingCheck 以 ping 函数实现的检查（store、redis）
type PingCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingCheck 创建 ping 检查
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

func (c *PingCheck) Name() string { return c.name }

func (c *PingCheck) Check(ctx context.Context) error { return c.ping(ctx) }
