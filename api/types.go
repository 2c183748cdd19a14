package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	agentctx "github.com/moguldesignsjordan/mogul-ai-agent/agent/context"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// =============================================================================
// 聊天
// =============================================================================

// ChatRequest POST /v1/chat 与 websocket 文本帧的请求体
type ChatRequest struct {
	Messages       []types.Message `json:"messages" validate:"required,min=1,max=500"`
	ConversationID string          `json:"conversation_id,omitempty" validate:"omitempty,max=128"`
}

// ChatResponse 聊天回复
type ChatResponse struct {
	Message   types.Message `json:"message"`
	RequestID string        `json:"request_id,omitempty"`
	Refused   bool          `json:"refused,omitempty"`
}

// WSReply websocket 回复帧，Message 与 Error 二选一
type WSReply struct {
	Message   *types.Message `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	Code      string         `json:"code,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// =============================================================================
// 语音
// =============================================================================

// TTSRequest POST /v1/tts
type TTSRequest struct {
	Text  string `json:"text" validate:"required,max=5000"`
	Voice string `json:"voice,omitempty" validate:"omitempty,max=64,alphanum"`
}

// STTResponse POST /v1/stt
type STTResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// =============================================================================
// 公共接口
// =============================================================================

// ConfigResponse GET /config，前端用于渲染预约按钮
type ConfigResponse struct {
	CalLink    string `json:"calLink"`
	BrandColor string `json:"brandColor"`
}

// HealthResponse GET /healthz
type HealthResponse struct {
	Status             string            `json:"status"`
	Environment        string            `json:"environment"`
	Model              string            `json:"model"`
	ProviderConfigured bool              `json:"provider_configured"`
	Breakers           map[string]string `json:"breakers"`
	Dependencies       map[string]string `json:"dependencies,omitempty"`
	GuardrailsEnabled  bool              `json:"guardrails_enabled"`
	Version            string            `json:"version,omitempty"`
}

// TokenResponse mogul-agent token 的输出
type TokenResponse struct {
	UserID    string `json:"user_id"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// =============================================================================
// 校验
// =============================================================================

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Normalize 在校验前整理输入
func (r *TTSRequest) Normalize() {
	r.Text = strings.TrimSpace(r.Text)
	r.Voice = strings.TrimSpace(r.Voice)
}

// Validate 结构校验之后再做消息语义校验
func (r *ChatRequest) Validate() error {
	if err := Validate(r); err != nil {
		return err
	}
	if err := agentctx.ValidateMessages(r.Messages); err != nil {
		return types.NewError(types.ErrInvalidRequest, err.Error())
	}
	return nil
}

// Validate 校验带 validate 标签的结构体，失败时返回 INVALID_REQUEST
func Validate(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewError(types.ErrInvalidRequest, "invalid request").WithCause(err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return types.NewError(types.ErrInvalidRequest, strings.Join(problems, "; ")).WithCause(err)
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must have at least %s item(s)", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s exceeds maximum length %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
