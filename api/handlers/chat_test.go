package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/agent/orchestrator"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/ctxkeys"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/store"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// =============================================================================
// 🧪 测试替身
// =============================================================================

type fakeChat struct {
	mu       sync.Mutex
	requests []orchestrator.Request
	reply    string
	err      error
}

func (f *fakeChat) Run(_ context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Result{
		Message:   types.NewAssistantMessage(f.reply),
		ToolCalls: 1,
		Usage:     llm.ChatUsage{TotalTokens: 42},
	}, nil
}

func (f *fakeChat) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeChat) last() orchestrator.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeLogs struct {
	mu   sync.Mutex
	logs []store.ChatLog
	err  error
}

func (f *fakeLogs) SaveChatLog(_ context.Context, l *store.ChatLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *l)
	return f.err
}

func (f *fakeLogs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

func postChat(h *ChatHandler, body string, mutate func(*http.Request) *http.Request) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.RemoteAddr = "192.0.2.7:1234"
	if mutate != nil {
		r = mutate(r)
	}
	w := httptest.NewRecorder()
	h.HandleChat(w, r)
	return w
}

// =============================================================================
// 🧪 ChatHandler 测试
// =============================================================================

func TestChatHandler_Success(t *testing.T) {
	svc := &fakeChat{reply: "Happy to help!"}
	logs := &fakeLogs{}
	h := NewChatHandler(svc, logs, false, zap.NewNop())

	w := postChat(h, `{"messages":[{"role":"user","content":"Hi there"}]}`, func(r *http.Request) *http.Request {
		return r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-9"))
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Message types.Message `json:"message"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, types.RoleAssistant, resp.Data.Message.Role)
	assert.Equal(t, "Happy to help!", resp.Data.Message.Content.String())

	req := svc.last()
	assert.Equal(t, "192.0.2.7", req.CallerID)
	assert.Equal(t, "req-9", req.RequestID)
	assert.Equal(t, store.ChannelWeb, req.Channel)

	require.Len(t, logs.logs, 1)
	entry := logs.logs[0]
	assert.Equal(t, "req-9", entry.RequestID)
	assert.Equal(t, "Hi there", entry.UserMessage)
	assert.Equal(t, "Happy to help!", entry.Reply)
	assert.Equal(t, 1, entry.MessageCount)
	assert.Equal(t, 1, entry.ToolCalls)
	assert.Equal(t, 42, entry.TotalTokens)
	assert.NotEmpty(t, entry.ID)
}

func TestChatHandler_ChatLogFailureDoesNotFailRequest(t *testing.T) {
	h := NewChatHandler(&fakeChat{reply: "ok"}, &fakeLogs{err: errors.New("db down")}, false, nil)
	w := postChat(h, `{"messages":[{"role":"user","content":"Hi"}]}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChatHandler_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
	}{
		{"empty messages", `{"messages":[]}`, "application/json", http.StatusBadRequest},
		{"missing messages", `{}`, "application/json", http.StatusBadRequest},
		{"invalid role", `{"messages":[{"role":"wizard","content":"x"}]}`, "application/json", http.StatusBadRequest},
		{"empty user content", `{"messages":[{"role":"user","content":""}]}`, "application/json", http.StatusBadRequest},
		{"bad json", `{"messages":`, "application/json", http.StatusBadRequest},
		{"wrong content type", `{"messages":[]}`, "text/plain", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeChat{reply: "never"}
			h := NewChatHandler(svc, nil, false, nil)
			w := postChat(h, tt.body, func(r *http.Request) *http.Request {
				r.Header.Set("Content-Type", tt.contentType)
				return r
			})
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Empty(t, svc.requests)
		})
	}
}

func TestChatHandler_MethodNotAllowed(t *testing.T) {
	h := NewChatHandler(&fakeChat{}, nil, false, nil)
	w := httptest.NewRecorder()
	h.HandleChat(w, httptest.NewRequest(http.MethodGet, "/v1/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestChatHandler_MapsServiceErrors(t *testing.T) {
	svc := &fakeChat{err: types.NewError(types.ErrServiceUnavailable, orchestrator.MsgBreakerOpen).WithHTTPStatus(http.StatusServiceUnavailable)}
	h := NewChatHandler(svc, nil, false, nil)

	w := postChat(h, `{"messages":[{"role":"user","content":"Hi"}]}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&resp))
	assert.Equal(t, orchestrator.MsgBreakerOpen, resp.Error.Message)
}
