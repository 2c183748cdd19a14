package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/internal/ctxkeys"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func decodeResponse(t *testing.T, body *bytes.Buffer) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteSuccess_CarriesRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-1"))
	w := httptest.NewRecorder()

	WriteSuccess(w, r, map[string]string{"key": "value"})

	resp := decodeResponse(t, w.Body)
	assert.True(t, resp.Success)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestErrorWriter_Write(t *testing.T) {
	tests := []struct {
		name       string
		err        *types.Error
		wantStatus int
	}{
		{"invalid request", types.NewError(types.ErrInvalidRequest, "bad"), http.StatusBadRequest},
		{"unauthorized", types.NewError(types.ErrUnauthorized, "no"), http.StatusUnauthorized},
		{"rate limited", types.NewError(types.ErrRateLimited, "slow down"), http.StatusTooManyRequests},
		{"breaker", types.NewError(types.ErrServiceUnavailable, "later"), http.StatusServiceUnavailable},
		{"upstream", types.NewError(types.ErrUpstreamError, "upstream"), http.StatusBadGateway},
		{"timeout", types.NewError(types.ErrUpstreamTimeout, "slow"), http.StatusGatewayTimeout},
		{"too large", types.NewError(types.ErrPayloadTooLarge, "big"), http.StatusRequestEntityTooLarge},
		{"explicit status", types.NewError(types.ErrInternalError, "x").WithHTTPStatus(http.StatusTeapot), http.StatusTeapot},
		{"unknown", types.NewError("SOMETHING", "x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/x", nil)
			ErrorWriter{Logger: zap.NewNop()}.Write(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w.Body)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
		})
	}
}

func TestErrorWriter_DetailOnlyInDebug(t *testing.T) {
	err := types.NewError(types.ErrUpstreamError, "Failed to get response from AI").WithCause(errors.New("dial tcp: refused"))

	w := httptest.NewRecorder()
	ErrorWriter{}.Write(w, httptest.NewRequest(http.MethodGet, "/", nil), err)
	assert.Empty(t, decodeResponse(t, w.Body).Error.Detail)

	w = httptest.NewRecorder()
	ErrorWriter{Debug: true}.Write(w, httptest.NewRequest(http.MethodGet, "/", nil), err)
	assert.Equal(t, "dial tcp: refused", decodeResponse(t, w.Body).Error.Detail)
}

func TestErrorWriter_WriteErrWrapsPlainErrors(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWriter{}.WriteErr(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(types.ErrInternalError), decodeResponse(t, w.Body).Error.Code)
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid", func(t *testing.T) {
		var p payload
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"mogul"}`))
		require.Nil(t, DecodeJSONBody(httptest.NewRecorder(), r, &p))
		assert.Equal(t, "mogul", p.Name)
	})

	t.Run("unknown field", func(t *testing.T) {
		var p payload
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
		err := DecodeJSONBody(httptest.NewRecorder(), r, &p)
		require.NotNil(t, err)
		assert.Equal(t, types.ErrInvalidRequest, err.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		var p payload
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		err := DecodeJSONBody(httptest.NewRecorder(), r, &p)
		require.NotNil(t, err)
		assert.Equal(t, "request body is empty", err.Message)
	})

	t.Run("too large", func(t *testing.T) {
		var p payload
		big := `{"name":"` + strings.Repeat("a", maxJSONBody) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
		err := DecodeJSONBody(httptest.NewRecorder(), r, &p)
		require.NotNil(t, err)
		assert.Equal(t, types.ErrPayloadTooLarge, err.Code)
	})
}

func TestValidateContentType(t *testing.T) {
	for ct, ok := range map[string]bool{
		"application/json":                true,
		"application/json; charset=utf-8": true,
		"Application/JSON":                true,
		"text/plain":                      false,
		"":                                false,
	} {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Content-Type", ct)
		assert.Equal(t, ok, ValidateContentType(r) == nil, ct)
	}
}

func TestRequireMethod(t *testing.T) {
	w := httptest.NewRecorder()
	assert.False(t, RequireMethod(w, httptest.NewRequest(http.MethodGet, "/", nil), http.MethodPost))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))

	assert.True(t, RequireMethod(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil), http.MethodPost))
}

func TestClientIPAndCallerID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(r))
	assert.Equal(t, "10.0.0.1", CallerID(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(r))

	r = r.WithContext(ctxkeys.WithUserID(r.Context(), "user-1"))
	assert.Equal(t, "user-1", CallerID(r))

	r = r.WithContext(ctxkeys.WithCallerID(r.Context(), "caller-1"))
	assert.Equal(t, "caller-1", CallerID(r))
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	assert.Same(t, rw, NewResponseWriter(rw))

	var seen int
	rw.BeforeHeader(func(h http.Header, status int) {
		seen = status
		h.Set("X-Test", "1")
	})
	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusAccepted, seen)
	assert.Equal(t, http.StatusAccepted, rw.StatusCode)
	assert.Equal(t, int64(5), rw.BytesWritten)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Test"))
}
