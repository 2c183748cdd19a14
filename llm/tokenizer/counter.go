package tokenizer

import (
	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

const (
	// MessageOverhead 每条消息的角色/分隔符开销
	MessageOverhead = 4
	// ConversationOverhead 消息数组本身的开销
	ConversationOverhead = 3
	// ImagePartCost 每个图片片段的固定成本
	ImagePartCost = 85
)

// Counter prices messages and conversations on top of a Tokenizer.
// When the tokenizer fails (for example tiktoken data cannot be loaded),
// the heuristic estimate is used instead so counting never fails.
type Counter struct {
	tok    Tokenizer
	logger *zap.Logger
}

// NewCounter wraps tok. A nil tok selects the heuristic estimator.
func NewCounter(tok Tokenizer, logger *zap.Logger) *Counter {
	if tok == nil {
		tok = NewEstimatorTokenizer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{tok: tok, logger: logger.With(zap.String("component", "token_counter"))}
}

// Name returns the underlying tokenizer name.
func (c *Counter) Name() string { return c.tok.Name() }

// Estimate returns the token cost of text.
func (c *Counter) Estimate(text string) int {
	n, err := c.tok.CountTokens(text)
	if err != nil {
		c.logger.Debug("tokenizer failed, using estimate", zap.String("tokenizer", c.tok.Name()), zap.Error(err))
		return Estimate(text)
	}
	return n
}

// CountMessage returns the token cost of one message.
func (c *Counter) CountMessage(m types.Message) int {
	tokens := MessageOverhead
	if m.Content.IsParts() {
		for _, p := range m.Content.Parts {
			switch p.Type {
			case types.PartText:
				tokens += c.Estimate(p.Text)
			case types.PartImageURL:
				tokens += ImagePartCost
			}
		}
	} else {
		tokens += c.Estimate(m.Content.Text)
	}
	for _, tc := range m.ToolCalls {
		tokens += c.Estimate(tc.Name)
		tokens += c.Estimate(tc.Arguments)
	}
	return tokens
}

// CountConversation returns the token cost of a message list.
func (c *Counter) CountConversation(msgs []types.Message) int {
	total := ConversationOverhead
	for _, m := range msgs {
		total += c.CountMessage(m)
	}
	return total
}
