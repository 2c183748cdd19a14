package orchestrator

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/moguldesignsjordan/mogul-ai-agent/llm"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/circuitbreaker"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/retry"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// 面向用户的错误文案
const (
	MsgBreakerOpen = "AI service temporarily unavailable. Please try again in a moment."
	MsgOverloaded  = "AI service is currently overloaded. Please try again in a moment."
	MsgUpstream    = "Failed to get response from AI"
	MsgInternal    = "An unexpected error occurred"
)

// MapError 把上游与内部错误转换为带 HTTP 状态的 *types.Error
func MapError(err error, requestID string) *types.Error {
	if err == nil {
		return nil
	}
	var te *types.Error
	if errors.As(err, &te) {
		return te
	}

	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return types.NewError(types.ErrServiceUnavailable, MsgBreakerOpen).
			WithHTTPStatus(http.StatusServiceUnavailable).
			WithRetryable(true).
			WithCause(err)
	case retry.IsExhausted(err):
		var ex *retry.RetriesExhaustedError
		errors.As(err, &ex)
		return types.NewError(types.ErrServiceUnavailable, MsgOverloaded).
			WithHTTPStatus(http.StatusServiceUnavailable).
			WithRetryable(true).
			WithDetail(fmt.Sprint(ex.Last)).
			WithCause(err)
	}

	var le *llm.Error
	if errors.As(err, &le) {
		return types.NewError(types.ErrUpstreamError, MsgUpstream).
			WithHTTPStatus(http.StatusBadGateway).
			WithProvider(le.Provider).
			WithDetail(le.Message).
			WithCause(err)
	}

	msg := MsgInternal
	if requestID != "" {
		msg = fmt.Sprintf("%s (request id %s)", MsgInternal, requestID)
	}
	return types.NewError(types.ErrInternalError, msg).
		WithHTTPStatus(http.StatusInternalServerError).
		WithDetail(err.Error()).
		WithCause(err)
}
