package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/llm/circuitbreaker"
)

// SynthesisObserver 接收每次合成尝试的结果（用于指标）
type SynthesisObserver func(provider string, err error, d time.Duration)

// FallbackSynthesizer 先尝试主 TTS（受熔断器保护），失败或熔断时使用兜底 TTS.
type FallbackSynthesizer struct {
	primary  TTSProvider
	breaker  circuitbreaker.CircuitBreaker
	fallback TTSProvider
	observe  SynthesisObserver
	logger   *zap.Logger
}

// NewFallbackSynthesizer 创建合成器。primary 为 nil 时直接使用 fallback.
func NewFallbackSynthesizer(primary TTSProvider, breaker circuitbreaker.CircuitBreaker, fallback TTSProvider, observe SynthesisObserver, logger *zap.Logger) *FallbackSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if primary != nil && breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
			Name:             primary.Name(),
			FailureThreshold: 3,
			RecoveryTimeout:  circuitbreaker.DefaultConfig().RecoveryTimeout,
		}, logger)
	}
	return &FallbackSynthesizer{
		primary:  primary,
		breaker:  breaker,
		fallback: fallback,
		observe:  observe,
		logger:   logger.With(zap.String("component", "tts")),
	}
}

// Synthesize 合成语音.
func (s *FallbackSynthesizer) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	var primaryErr error
	if s.primary != nil {
		if s.breaker.AllowRequest() {
			start := time.Now()
			resp, err := s.primary.Synthesize(ctx, req)
			s.notify(s.primary.Name(), err, start)
			if err == nil {
				s.breaker.RecordSuccess()
				return resp, nil
			}
			s.breaker.RecordFailure()
			primaryErr = err
			s.logger.Warn("primary tts failed, using fallback",
				zap.String("provider", s.primary.Name()),
				zap.String("breaker_state", s.breaker.State().String()),
				zap.Error(err),
			)
		} else {
			primaryErr = circuitbreaker.ErrCircuitOpen
			s.logger.Info("primary tts skipped, circuit breaker open", zap.String("provider", s.primary.Name()))
		}
	}

	if s.fallback == nil {
		if primaryErr == nil {
			primaryErr = errors.New("no tts provider configured")
		}
		return nil, fmt.Errorf("speech synthesis failed: %w", primaryErr)
	}
	start := time.Now()
	resp, err := s.fallback.Synthesize(ctx, req)
	s.notify(s.fallback.Name(), err, start)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	return resp, nil
}

// Breaker 主 TTS 熔断器，未配置主 TTS 时为 nil
func (s *FallbackSynthesizer) Breaker() circuitbreaker.CircuitBreaker {
	return s.breaker
}

func (s *FallbackSynthesizer) notify(provider string, err error, start time.Time) {
	if s.observe != nil {
		s.observe(provider, err, time.Since(start))
	}
}
