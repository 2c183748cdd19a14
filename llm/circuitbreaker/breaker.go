package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Name 受保护的上游名称，用于日志与指标
	Name string

	// FailureThreshold 关闭状态下连续失败次数阈值（触发熔断）
	FailureThreshold int

	// RecoveryTimeout 熔断恢复等待时间（Open -> HalfOpen）
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下允许的试探请求数，也是恢复所需的成功次数
	HalfOpenMaxCalls int

	// OnStateChange 状态变更回调（异步执行）
	OnStateChange func(name string, from State, to State)

	// Now 时钟，测试时可替换
	Now func() time.Time
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// CircuitBreaker 熔断器接口
// 调用方在发起受保护调用前必须先 AllowRequest，并且每次实际调用之后
// 恰好调用一次 RecordSuccess 或 RecordFailure。
type CircuitBreaker interface {
	// AllowRequest 判断是否放行本次调用
	AllowRequest() bool

	// RecordSuccess 记录一次成功调用
	RecordSuccess()

	// RecordFailure 记录一次失败调用
	RecordFailure()

	// State 获取当前状态（Open 超过恢复时间时会先转入 HalfOpen）
	State() State

	// Reset 重置熔断器（手动恢复）
	Reset()

	// Name 返回受保护上游名称
	Name() string
}

// breaker 熔断器实现
type breaker struct {
	config Config
	logger *zap.Logger

	mu                sync.Mutex
	state             State
	failureCount      int       // 失败次数
	successCount      int       // 半开状态下的成功次数
	lastFailureTime   time.Time // 最后失败时间
	halfOpenCallCount int       // 半开状态下已放行的调用次数
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(config *Config, logger *zap.Logger) CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	// 参数校验
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &breaker{
		config: cfg,
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("upstream", cfg.Name)),
		state:  StateClosed,
	}
}

func (b *breaker) Name() string { return b.config.Name }

// refreshLocked 在恢复时间到达后把 Open 转为 HalfOpen
func (b *breaker) refreshLocked() {
	if b.state != StateOpen {
		return
	}
	if b.config.Now().Sub(b.lastFailureTime) >= b.config.RecoveryTimeout {
		b.setState(StateHalfOpen)
		b.halfOpenCallCount = 0
		b.logger.Info("circuit breaker half-open, probing upstream")
	}
}

// AllowRequest 实现 CircuitBreaker.AllowRequest
func (b *breaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()
	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		// 半开状态，限制试探调用次数
		if b.halfOpenCallCount < b.config.HalfOpenMaxCalls {
			b.halfOpenCallCount++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess 实现 CircuitBreaker.RecordSuccess
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.HalfOpenMaxCalls {
			b.logger.Info("circuit breaker closed, upstream recovered",
				zap.Int("successes", b.successCount),
			)
			b.setState(StateClosed)
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

// RecordFailure 实现 CircuitBreaker.RecordFailure
func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = b.config.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.FailureThreshold {
			b.logger.Warn("circuit breaker opened",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.FailureThreshold),
			)
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		// 半开状态任何失败都重新打开
		b.logger.Warn("circuit breaker reopened after half-open failure",
			zap.Int("half_open_calls", b.halfOpenCallCount),
		)
		b.setState(StateOpen)
		b.successCount = 0
	}
}

// setState 设置状态并触发回调
func (b *breaker) setState(newState State) {
	oldState := b.state
	if oldState == newState {
		return
	}
	b.state = newState

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(b.config.Name, oldState, newState)
	}
}

// State 实现 CircuitBreaker.State
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Reset 实现 CircuitBreaker.Reset
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldState := b.state
	b.setState(StateClosed)
	b.failureCount = 0
	b.successCount = 0
	b.halfOpenCallCount = 0

	b.logger.Info("circuit breaker reset", zap.String("from_state", oldState.String()))
}

// ErrCircuitOpen 熔断器拒绝调用
var ErrCircuitOpen = errors.New("circuit breaker is open")
