package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/llm/circuitbreaker"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/retry"
)

// ResilientProvider 具有弹性能力的 Provider 包装器
// 每次尝试先询问熔断器，再调用底层 Provider，并把结果记回熔断器；
// 可重试的失败交给重试器按退避策略重试。
type ResilientProvider struct {
	provider    Provider                      // 底层 Provider
	retryer     retry.Retryer                 // 重试器
	breaker     circuitbreaker.CircuitBreaker // 熔断器
	callTimeout time.Duration                 // 单次调用超时
	logger      *zap.Logger
}

// ResilientProviderConfig 弹性 Provider 配置
type ResilientProviderConfig struct {
	// RetryPolicy 重试策略，RetryIf 为空时使用 IsRetryable
	RetryPolicy *retry.RetryPolicy

	// CircuitBreakerConfig 熔断器配置
	CircuitBreakerConfig *circuitbreaker.Config

	// CallTimeout 单次上游调用超时，超时视为可重试失败
	CallTimeout time.Duration
}

// DefaultResilientProviderConfig 返回默认配置
// 上游 LLM 使用 (5, 60s, 2) 的熔断参数
func DefaultResilientProviderConfig() *ResilientProviderConfig {
	return &ResilientProviderConfig{
		RetryPolicy: retry.DefaultRetryPolicy(),
		CircuitBreakerConfig: &circuitbreaker.Config{
			Name:             "openai",
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
			HalfOpenMaxCalls: 2,
		},
		CallTimeout: 60 * time.Second,
	}
}

// NewResilientProvider 创建具有弹性能力的 Provider
// breaker 由调用方持有并共享，以便健康检查读取其状态；传 nil 时按配置新建。
func NewResilientProvider(
	provider Provider,
	breaker circuitbreaker.CircuitBreaker,
	config *ResilientProviderConfig,
	logger *zap.Logger,
) *ResilientProvider {
	if config == nil {
		config = DefaultResilientProviderConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := retry.DefaultRetryPolicy()
	if config.RetryPolicy != nil {
		p := *config.RetryPolicy
		policy = &p
	}
	if policy.RetryIf == nil {
		policy.RetryIf = IsRetryable
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(config.CircuitBreakerConfig, logger)
	}

	return &ResilientProvider{
		provider:    provider,
		retryer:     retry.NewBackoffRetryer(policy, logger),
		breaker:     breaker,
		callTimeout: config.CallTimeout,
		logger:      logger.With(zap.String("component", "resilient_provider"), zap.String("provider", provider.Name())),
	}
}

// Completion 实现 Provider.Completion
// 熔断拒绝返回 circuitbreaker.ErrCircuitOpen（不重试），
// 重试耗尽返回 *retry.RetriesExhaustedError，硬错误原样返回。
func (rp *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return retry.DoWithResultTyped[*ChatResponse](rp.retryer, ctx, func(ctx context.Context) (*ChatResponse, error) {
		if !rp.breaker.AllowRequest() {
			rp.logger.Warn("upstream call rejected, circuit breaker open",
				zap.String("breaker_state", rp.breaker.State().String()),
			)
			return nil, circuitbreaker.ErrCircuitOpen
		}

		resp, err := rp.attempt(ctx, req)
		if err != nil {
			rp.breaker.RecordFailure()
			return nil, err
		}
		rp.breaker.RecordSuccess()
		return resp, nil
	})
}

// attempt 执行单次调用并把超时转换为可重试错误
func (rp *ResilientProvider) attempt(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	timeout := rp.callTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := rp.provider.Completion(callCtx, req)
	if err == nil {
		return resp, nil
	}
	// 父 context 仍然有效而单次调用超时：可重试
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		var le *Error
		if !errors.As(err, &le) || !le.Retryable {
			return nil, &Error{
				Code:       ErrUpstreamTimeout,
				Message:    "upstream call timed out",
				HTTPStatus: http.StatusGatewayTimeout,
				Retryable:  true,
				Provider:   rp.provider.Name(),
				Cause:      err,
			}
		}
	}
	return nil, err
}

// HealthCheck 实现 Provider.HealthCheck
func (rp *ResilientProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return rp.provider.HealthCheck(ctx)
}

// Name 实现 Provider.Name
func (rp *ResilientProvider) Name() string {
	return rp.provider.Name()
}

// Breaker 返回所使用的熔断器
func (rp *ResilientProvider) Breaker() circuitbreaker.CircuitBreaker {
	return rp.breaker
}
