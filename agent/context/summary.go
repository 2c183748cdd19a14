package context

import (
	"strings"

	"github.com/moguldesignsjordan/mogul-ai-agent/llm/tokenizer"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

const (
	summaryHeader     = "Previous conversation covered:"
	summaryMaxTopics  = 5
	summarySnippetLen = 100
	// DefaultSummaryTokens Summarize 默认 token 上限
	DefaultSummaryTokens = 500
)

// Summarize 从用户消息中提取话题片段，生成被裁掉历史的简短说明。
// 没有用户消息时返回空串。
func Summarize(messages []types.Message, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultSummaryTokens
	}

	var topics []string
	seen := make(map[string]struct{})
	for _, m := range messages {
		if m.Role != types.RoleUser {
			continue
		}
		snippet := topicSnippet(m.Content.String())
		if snippet == "" {
			continue
		}
		if _, dup := seen[snippet]; dup {
			continue
		}
		seen[snippet] = struct{}{}
		topics = append(topics, snippet)
		if len(topics) == summaryMaxTopics {
			break
		}
	}
	if len(topics) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(summaryHeader)
	for _, t := range topics {
		sb.WriteString("\n- ")
		sb.WriteString(t)
	}
	summary := sb.String()

	if tokenizer.Estimate(summary) > maxTokens {
		if r := []rune(summary); len(r) > maxTokens*4 {
			summary = string(r[:maxTokens*4])
		}
	}
	return summary
}

// topicSnippet 取前 100 个字符中第一句
func topicSnippet(content string) string {
	r := []rune(content)
	if len(r) > summarySnippetLen {
		r = r[:summarySnippetLen]
	}
	first, _, _ := strings.Cut(string(r), ".")
	return strings.TrimSpace(first)
}
