package providers

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moguldesignsjordan/mogul-ai-agent/llm"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		msg       string
		code      llm.ErrorCode
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, "bad key", llm.ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, "nope", llm.ErrForbidden, false},
		{"rate limited", http.StatusTooManyRequests, "slow down", llm.ErrRateLimited, true},
		{"quota on 429", http.StatusTooManyRequests, "You exceeded your current quota", llm.ErrQuotaExceeded, false},
		{"bad request", http.StatusBadRequest, "invalid", llm.ErrInvalidRequest, false},
		{"gateway timeout", http.StatusGatewayTimeout, "timeout", llm.ErrUpstreamTimeout, true},
		{"unavailable", http.StatusServiceUnavailable, "down", llm.ErrUpstreamError, true},
		{"overloaded", 529, "overloaded", llm.ErrModelOverloaded, true},
		{"internal", http.StatusInternalServerError, "boom", llm.ErrUpstreamError, true},
		{"not found", http.StatusNotFound, "missing", llm.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "openai")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, "openai", err.Provider)
			assert.Equal(t, tt.retryable, llm.IsRetryable(err))
		})
	}
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("connection refused")
	err := ConnectionError(cause, "elevenlabs")
	assert.True(t, err.Retryable)
	assert.ErrorIs(t, err, cause)
}

func TestReadErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai style", `{"error":{"message":"Rate limit","type":"requests"}}`, "Rate limit (type: requests)"},
		{"openai without type", `{"error":{"message":"Invalid key"}}`, "Invalid key"},
		{"elevenlabs object", `{"detail":{"status":"quota_exceeded","message":"Quota exceeded"}}`, "Quota exceeded"},
		{"elevenlabs string", `{"detail":"voice not found"}`, "voice not found"},
		{"plain text", "  Bad Gateway \n", "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadErrorMessage(strings.NewReader(tt.body)))
		})
	}
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req", ChooseModel(&llm.ChatRequest{Model: "req"}, "cfg", "fb"))
	assert.Equal(t, "cfg", ChooseModel(&llm.ChatRequest{}, "cfg", "fb"))
	assert.Equal(t, "fb", ChooseModel(nil, "", "fb"))
}
