package guardrails

import "regexp"

type sensitiveTopic struct {
	pattern  *regexp.Regexp
	topic    string
	severity string
}

// ContentSafety 敏感话题分级
type ContentSafety struct {
	topics []sensitiveTopic
}

// NewContentSafety 使用内置话题表
func NewContentSafety() *ContentSafety {
	return &ContentSafety{topics: []sensitiveTopic{
		{regexp.MustCompile(`(?i)\b(suicid\w*|self.?harm|kill\s+(myself|yourself)|end\s+(my|your)\s+life)\b`), "self_harm", SeverityCritical},
		{regexp.MustCompile(`(?i)\b(bomb|explosive|weapon|attack\s+plan|mass\s+shooting)\b`), "violence", SeverityHigh},
		{regexp.MustCompile(`(?i)\b(hack\s+into|steal\s+credentials|phishing|malware|ransomware)\b`), "illegal_cyber", SeverityHigh},
		{regexp.MustCompile(`(?i)\b(social\s+security|ssn|credit\s+card\s+number|bank\s+account)\b`), "pii_request", SeverityMedium},
	}}
}

// Classify 返回内容分级：命中 critical 拦截，high/medium 谨慎，否则安全
func (c *ContentSafety) Classify(text string) Verdict {
	v := Verdict{Level: LevelSafe}
	if text == "" {
		return v
	}
	best := 0
	for _, t := range c.topics {
		if !t.pattern.MatchString(text) {
			continue
		}
		v.Topics = append(v.Topics, t.topic)
		if s := severityScore(t.severity); s > best {
			best = s
			v.Topic = t.topic
		}
	}
	switch {
	case best >= severityScore(SeverityCritical):
		v.Level = LevelBlock
	case best > 0:
		v.Level = LevelCaution
	}
	return v
}
