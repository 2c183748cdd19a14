package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/agent/orchestrator"
	"github.com/moguldesignsjordan/mogul-ai-agent/api"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/store"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// =============================================================================
// 💬 聊天接口 Handler
// =============================================================================

// chatLogTimeout 聊天记录写入超时，不受请求取消影响
const chatLogTimeout = 5 * time.Second

// ChatService 由 orchestrator.Orchestrator 实现
type ChatService interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// ChatLogger 聊天记录持久化，由 store.Store 实现
type ChatLogger interface {
	SaveChatLog(ctx context.Context, l *store.ChatLog) error
}

// ChatHandler 聊天接口处理器
type ChatHandler struct {
	service ChatService
	logs    ChatLogger
	errs    ErrorWriter
	logger  *zap.Logger
}

// NewChatHandler logs 可以为 nil（不落库）
func NewChatHandler(service ChatService, logs ChatLogger, debug bool, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "chat_handler"))
	return &ChatHandler{
		service: service,
		logs:    logs,
		errs:    ErrorWriter{Logger: logger, Debug: debug},
		logger:  logger,
	}
}

// HandleChat 处理 POST /v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := ValidateContentType(r); err != nil {
		h.errs.Write(w, r, err)
		return
	}

	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}

	resp, err := h.Reply(r.Context(), &req, CallerID(r), requestID(r), store.ChannelWeb)
	if err != nil {
		h.errs.WriteErr(w, r, err)
		return
	}
	WriteSuccess(w, r, resp)
}

// Reply 校验请求、运行编排器并记录聊天日志，供 HTTP 与 websocket 共用
func (h *ChatHandler) Reply(ctx context.Context, req *api.ChatRequest, callerID, reqID, channel string) (*api.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := h.service.Run(ctx, orchestrator.Request{
		Messages:  req.Messages,
		CallerID:  callerID,
		RequestID: reqID,
		Channel:   channel,
	})
	if err != nil {
		return nil, err
	}

	h.saveLog(ctx, req, res, callerID, reqID, channel, time.Since(start))
	return &api.ChatResponse{Message: res.Message, RequestID: reqID, Refused: res.Refused}, nil
}

// saveLog 尽力写入，失败只记日志
func (h *ChatHandler) saveLog(ctx context.Context, req *api.ChatRequest, res *orchestrator.Result, callerID, reqID, channel string, latency time.Duration) {
	if h.logs == nil {
		return
	}
	userMessage := ""
	if i := types.LastUserIndex(req.Messages); i >= 0 {
		userMessage = req.Messages[i].Content.String()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), chatLogTimeout)
	defer cancel()

	entry := &store.ChatLog{
		ID:           uuid.NewString(),
		RequestID:    reqID,
		CallerID:     callerID,
		Channel:      channel,
		UserMessage:  userMessage,
		Reply:        res.Message.Content.String(),
		MessageCount: len(req.Messages),
		ToolCalls:    res.ToolCalls,
		TotalTokens:  res.Usage.TotalTokens,
		LatencyMs:    latency.Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.logs.SaveChatLog(ctx, entry); err != nil {
		h.logger.Warn("failed to save chat log",
			zap.String("request_id", reqID),
			zap.Error(err),
		)
	}
}
