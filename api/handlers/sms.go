package handlers

import (
	"encoding/xml"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/agent/orchestrator"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/store"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// SMSApology 处理失败时回给发送方的短信
const SMSApology = "Sorry, we couldn't process your message."

// twimlResponse <Response><Message>...</Message></Response>
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// SMSHandler Twilio 短信 webhook
type SMSHandler struct {
	service ChatService
	logger  *zap.Logger
}

// NewSMSHandler 创建短信处理器
func NewSMSHandler(service ChatService, logger *zap.Logger) *SMSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMSHandler{service: service, logger: logger.With(zap.String("component", "sms_handler"))}
}

// HandleSMS POST /twilio/sms，表单字段 Body/From，发送方号码作为 caller id
func (h *SMSHandler) HandleSMS(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("invalid sms form", zap.Error(err))
		writeTwiML(w, SMSApology)
		return
	}
	body := strings.TrimSpace(r.PostForm.Get("Body"))
	from := strings.TrimSpace(r.PostForm.Get("From"))
	if from == "" {
		from = "unknown"
	}
	if body == "" {
		writeTwiML(w, SMSApology)
		return
	}
	h.logger.Info("sms received", zap.String("from", from), zap.Int("chars", len(body)))

	res, err := h.service.Run(r.Context(), orchestrator.Request{
		Messages:  []types.Message{types.NewUserMessage(body)},
		CallerID:  from,
		RequestID: requestID(r),
		Channel:   store.ChannelSMS,
	})
	if err != nil {
		h.logger.Error("sms reply failed", zap.String("from", from), zap.Error(err))
		writeTwiML(w, SMSApology)
		return
	}
	writeTwiML(w, res.Message.Content.String())
}

func writeTwiML(w http.ResponseWriter, message string) {
	out, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		out, _ = xml.Marshal(twimlResponse{Message: SMSApology})
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}
