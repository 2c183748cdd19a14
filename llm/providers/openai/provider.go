package openai

import (
	"context"
	"errors"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/internal/tlsutil"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/providers"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

const (
	providerName = "openai"
	// DefaultModel 未配置模型时使用
	DefaultModel = "gpt-4o-mini"
)

// OpenAIProvider 基于 go-openai 的 Chat Completions Provider.
type OpenAIProvider struct {
	client *goopenai.Client
	cfg    providers.OpenAIConfig
	logger *zap.Logger
}

// NewOpenAIProvider 创建新的 OpenAI 提供者实例.
func NewOpenAIProvider(cfg providers.OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.OrgID = cfg.Organization
	clientCfg.HTTPClient = tlsutil.SecureHTTPClient(cfg.Timeout)

	return &OpenAIProvider{
		client: goopenai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger.With(zap.String("provider", providerName)),
	}
}

// Name 实现 llm.Provider
func (p *OpenAIProvider) Name() string { return providerName }

// Completion 实现 llm.Provider
func (p *OpenAIProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, &llm.Error{
			Code:       llm.ErrProviderUnavailable,
			Message:    "OpenAI API key is not configured",
			HTTPStatus: http.StatusServiceUnavailable,
			Provider:   providerName,
		}
	}

	body := goopenai.ChatCompletionRequest{
		Model:       providers.ChooseModel(req, p.cfg.Model, DefaultModel),
		Messages:    ConvertMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		body.Tools = ConvertTools(req.Tools)
		if req.ToolChoice != "" {
			body.ToolChoice = req.ToolChoice
		}
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, body)
	if err != nil {
		mapped := MapError(ctx, err)
		p.logger.Warn("chat completion failed",
			zap.String("model", body.Model),
			zap.Duration("latency", time.Since(start)),
			zap.Bool("retryable", mapped.Retryable),
			zap.Error(err),
		)
		return nil, mapped
	}

	p.logger.Debug("chat completion",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("latency", time.Since(start)),
	)
	return toChatResponse(resp), nil
}

// HealthCheck 通过列出模型探测 API 可用性
func (p *OpenAIProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.client.ListModels(ctx)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, MapError(ctx, err)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// MapError 将 go-openai 返回的错误转换为 llm.Error
// APIError 与 RequestError 按 HTTP 状态映射；其余非取消错误视为连接错误（可重试）。
func MapError(ctx context.Context, err error) *llm.Error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		mapped := providers.MapHTTPError(apiErr.HTTPStatusCode, apiErr.Message, providerName)
		mapped.Cause = err
		return mapped
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		mapped := providers.MapHTTPError(reqErr.HTTPStatusCode, msg, providerName)
		mapped.Cause = err
		return mapped
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &llm.Error{
			Code:       llm.ErrUpstreamTimeout,
			Message:    "upstream call timed out",
			HTTPStatus: http.StatusGatewayTimeout,
			Retryable:  ctx.Err() == nil,
			Provider:   providerName,
			Cause:      err,
		}
	}
	if ctx.Err() != nil {
		return &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    "request cancelled",
			HTTPStatus: http.StatusBadGateway,
			Provider:   providerName,
			Cause:      err,
		}
	}
	return providers.ConnectionError(err, providerName)
}

// ConvertMessages 将 types.Message 转换为 go-openai 消息
func ConvertMessages(msgs []types.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		oa := goopenai.ChatCompletionMessage{
			Role:       string(m.Role),
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		if m.Content.IsParts() {
			oa.MultiContent = make([]goopenai.ChatMessagePart, 0, len(m.Content.Parts))
			for _, part := range m.Content.Parts {
				switch part.Type {
				case types.PartText:
					oa.MultiContent = append(oa.MultiContent, goopenai.ChatMessagePart{
						Type: goopenai.ChatMessagePartTypeText,
						Text: part.Text,
					})
				case types.PartImageURL:
					if part.ImageURL == nil {
						continue
					}
					oa.MultiContent = append(oa.MultiContent, goopenai.ChatMessagePart{
						Type: goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{
							URL:    part.ImageURL.URL,
							Detail: goopenai.ImageURLDetail(part.ImageURL.Detail),
						},
					})
				}
			}
		} else {
			oa.Content = m.Content.Text
		}
		for _, tc := range m.ToolCalls {
			args := tc.Arguments
			if args == "" {
				args = "{}"
			}
			oa.ToolCalls = append(oa.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		out = append(out, oa)
	}
	return out
}

// ConvertTools 将工具定义转换为 go-openai 的 function tools
func ConvertTools(tools []types.ToolSchema) []goopenai.Tool {
	out := make([]goopenai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func toChatResponse(resp goopenai.ChatCompletionResponse) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		msg := types.NewAssistantMessage(c.Message.Content)
		msg.Name = c.Message.Name
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: string(c.FinishReason),
			Message:      msg,
		})
	}
	return &llm.ChatResponse{
		ID:       resp.ID,
		Provider: providerName,
		Model:    resp.Model,
		Choices:  choices,
		Usage: llm.ChatUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		CreatedAt: time.Unix(resp.Created, 0),
	}
}
