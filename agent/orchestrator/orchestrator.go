package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	agentctx "github.com/moguldesignsjordan/mogul-ai-agent/agent/context"
	"github.com/moguldesignsjordan/mogul-ai-agent/agent/guardrails"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/circuitbreaker"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// RefusalMessage 护栏拒绝时返回给用户的固定回复
const RefusalMessage = "I'm sorry, but I can't process that request. Please rephrase your question."

// DefaultMaxContextTokens 默认上下文预算
const DefaultMaxContextTokens = 50000

const tracerName = "github.com/moguldesignsjordan/mogul-ai-agent/agent/orchestrator"

// Config 编排器配置
type Config struct {
	Model             string  `yaml:"model" json:"model"`
	MaxContextTokens  int     `yaml:"max_context_tokens" json:"max_context_tokens"`
	EnableGuardrails  bool    `yaml:"enable_guardrails" json:"enable_guardrails"`
	Temperature       float32 `yaml:"temperature" json:"temperature"`
	MaxResponseTokens int     `yaml:"max_response_tokens" json:"max_response_tokens"`
	SystemPrompt      string  `yaml:"-" json:"-"` // 为空时使用 SystemPrompt
}

// ToolRunner 执行一批工具调用，结果顺序与调用一致
type ToolRunner interface {
	Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult
}

// Recorder 编排器使用的指标接口，由 internal/metrics.Collector 实现
type Recorder interface {
	RecordGuardrail(decision, category string)
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
	RecordChat(channel, outcome string)
}

// Request 单次对话请求
type Request struct {
	Messages  []types.Message
	CallerID  string
	RequestID string
	Channel   string // web / ws / sms / voice
}

// Result 单次对话的结果与统计
type Result struct {
	Message         types.Message
	Refused         bool
	Decision        guardrails.Decision
	ToolCalls       int
	Usage           llm.ChatUsage
	ContextTokens   int
	ContextMessages int
}

// Orchestrator 串联护栏、上下文裁剪、上游调用与工具执行
type Orchestrator struct {
	provider llm.Provider
	config   Config
	guard    *guardrails.Guard
	window   *agentctx.WindowManager
	tools    []types.ToolSchema
	runner   ToolRunner
	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithGuard 设置护栏；未设置时只做清洗
func WithGuard(g *guardrails.Guard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

// WithTools 设置广播给模型的工具与执行器
func WithTools(schemas []types.ToolSchema, runner ToolRunner) Option {
	return func(o *Orchestrator) {
		o.tools = schemas
		o.runner = runner
	}
}

// WithWindow 替换上下文窗口管理器（例如使用 tiktoken 计数）
func WithWindow(w *agentctx.WindowManager) Option {
	return func(o *Orchestrator) { o.window = w }
}

// WithRecorder 设置指标
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithTracer 替换 tracer，默认取全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New 创建编排器
func New(provider llm.Provider, config Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxContextTokens <= 0 {
		config.MaxContextTokens = DefaultMaxContextTokens
	}
	o := &Orchestrator{
		provider: provider,
		config:   config,
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.guard == nil {
		o.guard = guardrails.NewGuard(nil, nil, nil, 0, logger)
	}
	if o.window == nil {
		o.window = agentctx.NewWindowManager(nil, logger)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

// Handle 处理一段对话并返回助手回复
func (o *Orchestrator) Handle(ctx context.Context, conversation []types.Message, callerID string) (types.Message, error) {
	res, err := o.Run(ctx, Request{Messages: conversation, CallerID: callerID})
	if err != nil {
		return types.Message{}, err
	}
	return res.Message, nil
}

// Run 与 Handle 相同，额外返回统计信息。错误总是 *types.Error。
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.CallerID == "" {
		req.CallerID = "anonymous"
	}
	channel := req.Channel
	if channel == "" {
		channel = "web"
	}
	ctx, span := o.tracer.Start(ctx, "orchestrator.handle", trace.WithAttributes(
		attribute.String("channel", channel),
		attribute.Int("messages", len(req.Messages)),
	))
	defer span.End()

	logger := o.logger.With(zap.String("caller_id", req.CallerID))
	if req.RequestID != "" {
		logger = logger.With(zap.String("request_id", req.RequestID))
	}

	res, err := o.safeRun(ctx, req, channel, logger)
	if err != nil {
		mapped := MapError(err, req.RequestID)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(mapped.Code))
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			logger.Warn("request failed, circuit breaker open")
		} else {
			logger.Error("request failed", zap.String("code", string(mapped.Code)), zap.Error(err))
		}
		o.recordChat(channel, string(mapped.Code))
		return nil, mapped
	}

	outcome := "ok"
	if res.Refused {
		outcome = "refused"
	}
	o.recordChat(channel, outcome)
	span.SetAttributes(attribute.Int("tool_calls", res.ToolCalls), attribute.Bool("refused", res.Refused))
	return res, nil
}

// safeRun 把处理链中的 panic 转成普通错误，交给 MapError 映射为 internal_error
func (o *Orchestrator) safeRun(ctx context.Context, req Request, channel string, logger *zap.Logger) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling request", zap.Any("panic", r), zap.Stack("stack"))
			res, err = nil, fmt.Errorf("orchestrator panic: %v", r)
		}
	}()
	return o.run(ctx, req, channel, logger)
}

func (o *Orchestrator) run(ctx context.Context, req Request, channel string, logger *zap.Logger) (*Result, error) {
	res := &Result{Decision: guardrails.DecisionAllow}

	// 1. 护栏
	msgs := req.Messages
	if o.config.EnableGuardrails {
		check := o.guard.Check(msgs, req.CallerID)
		res.Decision = check.Decision
		o.recordGuardrail(check)
		if !check.Safe() {
			res.Refused = true
			res.Message = types.NewAssistantMessage(RefusalMessage)
			return res, nil
		}
		msgs = check.Messages
	} else {
		msgs = o.guard.Sanitize(msgs)
	}
	if err := validateSanitized(msgs); err != nil {
		logger.Warn("rejected empty user message after sanitization", zap.Error(err))
		return nil, err
	}

	// 2. 系统提示 + 裁剪
	prompt := PromptFor(o.config.SystemPrompt, channel == "voice")
	base := make([]types.Message, 0, len(msgs)+1)
	base = append(base, types.NewSystemMessage(prompt))
	base = append(base, msgs...)
	opts := agentctx.DefaultTrimOptions(o.config.Model)
	opts.MaxTokens = o.config.MaxContextTokens
	base = o.window.Trim(base, opts)

	res.ContextTokens = o.window.Counter().CountConversation(base)
	res.ContextMessages = len(base)
	logger.Info("request context",
		zap.Int("context_tokens", res.ContextTokens),
		zap.Int("context_messages", res.ContextMessages))

	// 3. 第一次上游调用（带工具）
	first, err := o.complete(ctx, base, true, 1, req.RequestID)
	if err != nil {
		return nil, err
	}
	addUsage(&res.Usage, first.Usage)
	choice, err := first.FirstChoice()
	if err != nil {
		return nil, err
	}

	if !choice.RequestsTools() || o.runner == nil {
		res.Message = asAssistant(choice.Message)
		o.logUsage(logger, res)
		return res, nil
	}

	// 4. 工具调用
	calls := choice.Message.ToolCalls
	res.ToolCalls = len(calls)
	logger.Info("executing tool calls", zap.Int("count", len(calls)))

	results := o.runner.Execute(ctx, calls)
	withTools := make([]types.Message, 0, len(base)+1+len(results))
	withTools = append(withTools, base...)
	withTools = append(withTools, asAssistant(choice.Message))
	for _, r := range results {
		withTools = append(withTools, r.ToMessage())
	}

	// 5. 第二次上游调用（不带工具）
	second, err := o.complete(ctx, withTools, false, 2, req.RequestID)
	if err != nil {
		return nil, err
	}
	addUsage(&res.Usage, second.Usage)
	final, err := second.FirstChoice()
	if err != nil {
		return nil, err
	}
	res.Message = asAssistant(final.Message)
	res.Message.ToolCalls = nil
	o.logUsage(logger, res)
	return res, nil
}

// validateSanitized 清洗后的用户消息不能为空（纯图片消息除外）
func validateSanitized(msgs []types.Message) error {
	for i, m := range msgs {
		if m.Role != types.RoleUser || strings.TrimSpace(m.Content.String()) != "" {
			continue
		}
		hasImage := false
		for _, p := range m.Content.Parts {
			hasImage = hasImage || p.Type == types.PartImageURL
		}
		if !hasImage {
			return types.NewError(types.ErrInvalidRequest, "User message cannot be empty").
				WithHTTPStatus(http.StatusBadRequest).
				WithDetail(fmt.Sprintf("Message %d: empty after sanitization", i))
		}
	}
	return nil
}

// complete 发起一次上游调用并记录 span 与指标
func (o *Orchestrator) complete(ctx context.Context, msgs []types.Message, withTools bool, call int, requestID string) (*llm.ChatResponse, error) {
	req := &llm.ChatRequest{
		TraceID:     requestID,
		Model:       o.config.Model,
		Messages:    msgs,
		MaxTokens:   o.config.MaxResponseTokens,
		Temperature: o.config.Temperature,
	}
	if withTools && len(o.tools) > 0 {
		req.Tools = o.tools
		req.ToolChoice = "auto"
	}

	ctx, span := o.tracer.Start(ctx, "llm.completion", trace.WithAttributes(
		attribute.String("llm.provider", o.provider.Name()),
		attribute.String("llm.model", o.config.Model),
		attribute.Int("llm.call", call),
		attribute.Int("llm.messages", len(msgs)),
		attribute.Int("llm.tools", len(req.Tools)),
	))
	defer span.End()

	start := time.Now()
	resp, err := o.provider.Completion(ctx, req)
	d := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.recordLLM("error", d, llm.ChatUsage{})
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
	)
	o.recordLLM("ok", d, resp.Usage)
	return resp, nil
}

func (o *Orchestrator) logUsage(logger *zap.Logger, res *Result) {
	logger.Info("request completed",
		zap.Int("prompt_tokens", res.Usage.PromptTokens),
		zap.Int("completion_tokens", res.Usage.CompletionTokens),
		zap.Int("total_tokens", res.Usage.TotalTokens),
		zap.Int("tool_calls", res.ToolCalls),
		zap.Int("context_messages", res.ContextMessages))
}

func (o *Orchestrator) recordGuardrail(check guardrails.CheckResult) {
	if o.recorder == nil {
		return
	}
	category := check.Verdict.Topic
	if check.Injection != nil {
		category = check.Injection.Category
	}
	o.recorder.RecordGuardrail(string(check.Decision), category)
}

func (o *Orchestrator) recordLLM(status string, d time.Duration, usage llm.ChatUsage) {
	if o.recorder != nil {
		o.recorder.RecordLLMRequest(o.provider.Name(), o.config.Model, status, d, usage.PromptTokens, usage.CompletionTokens)
	}
}

func (o *Orchestrator) recordChat(channel, outcome string) {
	if o.recorder != nil {
		o.recorder.RecordChat(channel, outcome)
	}
}

// Model 当前使用的模型
func (o *Orchestrator) Model() string { return o.config.Model }

// GuardrailsEnabled 是否启用护栏
func (o *Orchestrator) GuardrailsEnabled() bool { return o.config.EnableGuardrails }

func addUsage(total *llm.ChatUsage, u llm.ChatUsage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}

func asAssistant(m types.Message) types.Message {
	m.Role = types.RoleAssistant
	return m
}
