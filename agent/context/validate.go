package context

import (
	"fmt"
	"strings"

	"github.com/moguldesignsjordan/mogul-ai-agent/agent/guardrails"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/tokenizer"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// ValidationError 描述一条不合法的消息
type ValidationError struct {
	Index  int // -1 表示整个列表
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return e.Reason
	}
	return fmt.Sprintf("Message %d: %s", e.Index, e.Reason)
}

// ValidateMessage 返回空串表示合法，否则返回原因
func ValidateMessage(m types.Message) string {
	if !m.Role.Valid() {
		return fmt.Sprintf("Invalid role: %s", m.Role)
	}
	if m.Role == types.RoleUser {
		text := strings.TrimSpace(m.Content.String())
		// 只含 NUL 或 ANSI 转义的内容清洗后为空，同样视为空消息
		if guardrails.Sanitize(text, 0) == "" && !hasImage(m.Content) {
			return "User message cannot be empty"
		}
		if n := tokenizer.Estimate(text); n > MaxUserMessageTokens {
			return fmt.Sprintf("Message too long (%d tokens, max %d)", n, MaxUserMessageTokens)
		}
	}
	if m.Role == types.RoleTool && m.ToolCallID == "" {
		return "Tool message requires tool_call_id"
	}
	return ""
}

// ValidateMessages 校验整个列表，返回第一条不合法消息对应的 *ValidationError
func ValidateMessages(msgs []types.Message) error {
	if len(msgs) == 0 {
		return &ValidationError{Index: -1, Reason: "Messages list cannot be empty"}
	}
	for i, m := range msgs {
		if reason := ValidateMessage(m); reason != "" {
			return &ValidationError{Index: i, Reason: reason}
		}
	}
	return nil
}

func hasImage(c types.Content) bool {
	for _, p := range c.Parts {
		if p.Type == types.PartImageURL {
			return true
		}
	}
	return false
}
