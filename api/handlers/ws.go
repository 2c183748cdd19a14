package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/api"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/store"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// wsReadLimit 单帧上限，与 JSON 请求体一致
const wsReadLimit = maxJSONBody

// WSHandler /v1/chat/ws，每个文本帧是一次聊天请求，回复按顺序写回。
// 同一连接上的请求串行处理。
type WSHandler struct {
	chat           *ChatHandler
	originPatterns []string
	logger         *zap.Logger
}

// NewWSHandler allowedOrigins 与 CORS 配置相同（完整 URL）
func NewWSHandler(chat *ChatHandler, allowedOrigins []string, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		chat:           chat,
		originPatterns: originPatterns(allowedOrigins),
		logger:         logger.With(zap.String("component", "ws_handler")),
	}
}

// HandleWS 升级连接并进入读循环
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(wsReadLimit)
	defer conn.CloseNow()

	callerID := CallerID(r)
	logger := h.logger.With(zap.String("caller_id", callerID))
	logger.Debug("websocket connected")

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			if err := wsjson.Write(ctx, conn, api.WSReply{Error: "text frames only", Code: string(types.ErrInvalidRequest)}); err != nil {
				return
			}
			continue
		}

		reply := h.handleFrame(ctx, data, callerID)
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (h *WSHandler) handleFrame(ctx context.Context, data []byte, callerID string) api.WSReply {
	reqID := uuid.NewString()

	var req api.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return api.WSReply{Error: "invalid JSON body", Code: string(types.ErrInvalidRequest), RequestID: reqID}
	}

	resp, err := h.chat.Reply(ctx, &req, callerID, reqID, store.ChannelWS)
	if err != nil {
		te, ok := types.AsError(err)
		if !ok {
			te = types.NewError(types.ErrInternalError, "An unexpected error occurred")
		}
		return api.WSReply{Error: te.Message, Code: string(te.Code), RequestID: reqID}
	}
	return api.WSReply{Message: &resp.Message, RequestID: reqID}
}

// originPatterns 把 https://a.com 形式的来源转成 websocket 使用的 host 模式
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, u.Host)
	}
	return out
}
