package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// ToolFunc 工具函数。args 为解码后的 JSON 对象，返回值会被编码为 JSON 交回模型。
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolMetadata 工具元数据
type ToolMetadata struct {
	Schema    types.ToolSchema
	Timeout   time.Duration    // 默认 30s
	RateLimit *RateLimitConfig // 可选
}

// RateLimitConfig 单个工具的调用频率上限
type RateLimitConfig struct {
	MaxCalls int
	Window   time.Duration
}

// 结构化错误结果中的 error 取值
const (
	ResultUnknownTool     = "unknown_tool"
	ResultInvalidToolCall = "invalid_tool_call"
	ResultExecutionFailed = "tool_execution_failed"
)

// ToolRegistry 工具注册中心
type ToolRegistry interface {
	Register(name string, fn ToolFunc, metadata ToolMetadata) error
	Get(name string) (ToolFunc, ToolMetadata, error)
	List() []types.ToolSchema
	Has(name string) bool
}

// ArgumentValidator 在执行前校验工具参数（由 guardrails 提供）
type ArgumentValidator interface {
	Validate(name string, args map[string]any) (bool, string)
}

// ExecutionObserver 接收每次执行的结果，status 为 ok / invalid / unknown / failed
type ExecutionObserver func(name, status string, d time.Duration)

// ====== DefaultRegistry ======

type DefaultRegistry struct {
	mu       sync.RWMutex
	tools    map[string]ToolFunc
	metadata map[string]ToolMetadata
	limiters map[string]*rate.Limiter
	logger   *zap.Logger
}

// NewDefaultRegistry 创建工具注册中心
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:    make(map[string]ToolFunc),
		metadata: make(map[string]ToolMetadata),
		limiters: make(map[string]*rate.Limiter),
		logger:   logger.With(zap.String("component", "tool_registry")),
	}
}

func (r *DefaultRegistry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fn == nil {
		return fmt.Errorf("tool %s has no function", name)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}
	if len(metadata.Schema.Parameters) == 0 {
		metadata.Schema.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	if metadata.Timeout <= 0 {
		metadata.Timeout = 30 * time.Second
	}

	r.tools[name] = fn
	r.metadata[name] = metadata
	if rl := metadata.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		r.limiters[name] = rate.NewLimiter(rate.Every(rl.Window/time.Duration(rl.MaxCalls)), rl.MaxCalls)
	}

	r.logger.Debug("tool registered", zap.String("name", name), zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *DefaultRegistry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, fmt.Errorf("tool %s not found", name)
	}
	return fn, r.metadata[name], nil
}

// List 按名称排序，保证每次请求发给模型的工具列表一致
func (r *DefaultRegistry) List() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]types.ToolSchema, 0, len(r.metadata))
	for _, meta := range r.metadata {
		schemas = append(schemas, meta.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

func (r *DefaultRegistry) allow(name string) bool {
	r.mu.RLock()
	limiter, ok := r.limiters[name]
	r.mu.RUnlock()
	return !ok || limiter.Allow()
}

// ====== DefaultExecutor ======

// ExecutorOption 执行器选项
type ExecutorOption func(*DefaultExecutor)

// WithValidator 启用参数校验
func WithValidator(v ArgumentValidator) ExecutorOption {
	return func(e *DefaultExecutor) { e.validator = v }
}

// WithObserver 设置执行观察者（指标）
func WithObserver(o ExecutionObserver) ExecutorOption {
	return func(e *DefaultExecutor) { e.observe = o }
}

type DefaultExecutor struct {
	registry  ToolRegistry
	validator ArgumentValidator
	observe   ExecutionObserver
	logger    *zap.Logger
}

// NewDefaultExecutor 创建工具执行器
func NewDefaultExecutor(registry ToolRegistry, logger *zap.Logger, opts ...ExecutorOption) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &DefaultExecutor{
		registry: registry,
		logger:   logger.With(zap.String("component", "tool_executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute 并发执行一批调用，结果顺序与 calls 一致
func (e *DefaultExecutor) Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c types.ToolCall) {
			defer wg.Done()
			results[idx] = e.ExecuteOne(ctx, c)
		}(i, call)
	}
	wg.Wait()
	return results
}

// ExecuteOne 执行单个调用。失败不会返回 error，而是生成结构化的 JSON 结果交给模型。
// 顺序：参数解码 -> 校验 -> 查找 -> 限流 -> 执行（超时与 panic 保护）
func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	args := DecodeArguments(call.Arguments)

	if e.validator != nil {
		if ok, reason := e.validator.Validate(call.Name, args); !ok {
			e.logger.Warn("tool call rejected by validator",
				zap.String("tool", call.Name),
				zap.String("reason", reason))
			return e.finish(call, start, "invalid", map[string]any{
				"error":  ResultInvalidToolCall,
				"detail": reason,
			})
		}
	}

	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		e.logger.Warn("unknown tool requested", zap.String("tool", call.Name))
		return e.finish(call, start, "unknown", map[string]any{
			"error": ResultUnknownTool,
			"tool":  call.Name,
		})
	}

	if reg, ok := e.registry.(*DefaultRegistry); ok && !reg.allow(call.Name) {
		return e.finish(call, start, "failed", map[string]any{
			"error":  ResultExecutionFailed,
			"detail": "rate limit exceeded",
		})
	}

	res, err := e.run(ctx, fn, meta.Timeout, args)
	if err != nil {
		e.logger.Error("tool execution failed", zap.String("tool", call.Name), zap.Error(err))
		return e.finish(call, start, "failed", map[string]any{
			"error":  ResultExecutionFailed,
			"detail": err.Error(),
		})
	}
	return e.finish(call, start, "ok", res)
}

type runOutcome struct {
	res any
	err error
}

func (e *DefaultExecutor) run(ctx context.Context, fn ToolFunc, timeout time.Duration, args map[string]any) (any, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 缓冲为 1，超时后工具 goroutine 仍可写入并退出
	done := make(chan runOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runOutcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		res, err := fn(execCtx, args)
		done <- runOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-execCtx.Done():
		return nil, fmt.Errorf("execution timeout after %s", timeout)
	}
}

func (e *DefaultExecutor) finish(call types.ToolCall, start time.Time, status string, payload any) types.ToolResult {
	result := types.ToolResult{ToolCallID: call.ID, Name: call.Name}

	raw, err := json.Marshal(payload)
	if err != nil {
		status = "failed"
		raw, _ = json.Marshal(map[string]any{"error": ResultExecutionFailed, "detail": "result is not JSON encodable"})
	}
	result.Result = raw
	if m, ok := payload.(map[string]any); ok && status != "ok" {
		if code, ok := m["error"].(string); ok {
			result.Error = code
		}
	}
	if status == "failed" && result.Error == "" {
		result.Error = ResultExecutionFailed
	}
	result.Duration = time.Since(start)

	if e.observe != nil {
		e.observe(call.Name, status, result.Duration)
	}
	e.logger.Debug("tool call finished",
		zap.String("tool", call.Name),
		zap.String("status", status),
		zap.Duration("duration", result.Duration))
	return result
}

// DecodeArguments 解码模型给出的参数；空串、非法 JSON 或非对象一律视为空对象
func DecodeArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
