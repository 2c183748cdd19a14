package guardrails

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// DefaultMaxInputLength Sanitize 默认的最大字符数
const DefaultMaxInputLength = 32000

var (
	ansiEscape   = regexp.MustCompile(`\x1b\[[0-9;]*[mGKH]`)
	manyNewlines = regexp.MustCompile(`\n{5,}`)
	manySpaces   = regexp.MustCompile(` {10,}`)
	manyTabs     = regexp.MustCompile(`\t{5,}`)
)

// Sanitize 清洗用户输入。对结果再次调用不会有变化。
func Sanitize(text string, maxLength int) string {
	out, _ := sanitize(text, maxLength)
	return out
}

func sanitize(text string, maxLength int) (string, bool) {
	if text == "" {
		return "", false
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxInputLength
	}

	s := strings.ReplaceAll(text, "\x00", "")
	// 删除一个转义序列可能拼出新的序列，直到稳定
	for {
		next := ansiEscape.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	s = manyNewlines.ReplaceAllString(s, "\n\n\n")
	s = manySpaces.ReplaceAllString(s, "   ")
	s = manyTabs.ReplaceAllString(s, "\t\t")

	truncated := false
	if utf8.RuneCountInString(s) > maxLength {
		s = string([]rune(s)[:maxLength])
		truncated = true
	}
	return strings.TrimSpace(s), truncated
}

// SanitizeMessages 返回清洗后的副本，截断时记录日志
func SanitizeMessages(msgs []types.Message, maxLength int, logger *zap.Logger) []types.Message {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		m.Content = m.Content.MapText(func(s string) string {
			clean, truncated := sanitize(s, maxLength)
			if truncated {
				logger.Info("input truncated",
					zap.Int("index", i),
					zap.Int("original_chars", utf8.RuneCountInString(s)),
					zap.Int("max_chars", maxLength))
			}
			return clean
		})
		out[i] = m
	}
	return out
}
