package context

import (
	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/llm/tokenizer"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// TrimOptions 裁剪参数
type TrimOptions struct {
	Model          string
	MaxTokens      int  // >0 时覆盖模型上限
	PreserveSystem bool // 始终保留系统消息
	PreserveRecent int  // 始终保留的最近非系统消息条数
}

// DefaultTrimOptions 默认裁剪参数
func DefaultTrimOptions(model string) TrimOptions {
	return TrimOptions{Model: model, PreserveSystem: true, PreserveRecent: 4}
}

// TokenBudget 单次调用的 token 预算
type TokenBudget struct {
	ModelLimit      int
	ResponseReserve int
	Ceiling         int
}

// BudgetFor 计算预算；maxTokens > 0 时直接作为上限
func BudgetFor(model string, maxTokens int) TokenBudget {
	limit := ModelContextLimit(model)
	b := TokenBudget{ModelLimit: limit, ResponseReserve: ResponseTokenReserve, Ceiling: limit - ResponseTokenReserve}
	if maxTokens > 0 {
		b.Ceiling = maxTokens
	}
	return b
}

// WindowManager 按 token 预算裁剪对话
type WindowManager struct {
	counter *tokenizer.Counter
	logger  *zap.Logger
}

// NewWindowManager counter 为 nil 时使用启发式估算
func NewWindowManager(counter *tokenizer.Counter, logger *zap.Logger) *WindowManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if counter == nil {
		counter = tokenizer.NewCounter(nil, logger)
	}
	return &WindowManager{counter: counter, logger: logger.With(zap.String("component", "context_window"))}
}

// Counter 返回使用中的计数器
func (w *WindowManager) Counter() *tokenizer.Counter { return w.counter }

// Trim 返回适配预算的消息子序列：系统消息、保留的旧消息、最近消息，保持原有时间顺序。
func (w *WindowManager) Trim(messages []types.Message, opts TrimOptions) []types.Message {
	if len(messages) == 0 {
		return []types.Message{}
	}
	budget := BudgetFor(opts.Model, opts.MaxTokens)

	var system, other []types.Message
	for _, m := range messages {
		if opts.PreserveSystem && m.Role == types.RoleSystem {
			system = append(system, m)
		} else {
			other = append(other, m)
		}
	}

	// 会话开销只计一次，其余按单条消息计价
	systemTokens := w.sum(system)
	available := budget.Ceiling - tokenizer.ConversationOverhead - systemTokens
	if available <= 0 {
		w.logger.Warn("system messages exceed token budget",
			zap.Int("system_tokens", systemTokens+tokenizer.ConversationOverhead),
			zap.Int("ceiling", budget.Ceiling))
		return nonNil(system)
	}

	recent := opts.PreserveRecent
	if recent < 0 {
		recent = 0
	}
	if recent > len(other) {
		recent = len(other)
	}
	older, tail := other[:len(other)-recent], other[len(other)-recent:]

	tailTokens := w.sum(tail)
	if tailTokens > available {
		w.logger.Warn("recent messages exceed token budget",
			zap.Int("recent_tokens", tailTokens),
			zap.Int("available", available),
			zap.Int("preserve_recent", recent))
		return concat(system, nil, tail)
	}

	remaining := available - tailTokens
	start := len(older)
	for i := len(older) - 1; i >= 0; i-- {
		cost := w.counter.CountMessage(older[i])
		if cost > remaining {
			break
		}
		remaining -= cost
		start = i
	}

	if dropped := start; dropped > 0 {
		w.logger.Info("trimmed conversation history",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(system)+len(older)-start+len(tail)),
			zap.Int("ceiling", budget.Ceiling))
	}
	return concat(system, older[start:], tail)
}

func (w *WindowManager) sum(msgs []types.Message) int {
	total := 0
	for _, m := range msgs {
		total += w.counter.CountMessage(m)
	}
	return total
}

var defaultWindow = NewWindowManager(nil, nil)

// Trim 使用启发式计数器的便捷函数
func Trim(messages []types.Message, opts TrimOptions) []types.Message {
	return defaultWindow.Trim(messages, opts)
}

func concat(parts ...[]types.Message) []types.Message {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]types.Message, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func nonNil(msgs []types.Message) []types.Message {
	if msgs == nil {
		return []types.Message{}
	}
	return msgs
}
