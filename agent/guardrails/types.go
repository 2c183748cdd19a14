package guardrails

// 严重级别
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
)

func severityScore(s string) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	}
	return 0
}

// 注入类别
const (
	CategoryInstructionOverride = "instruction_override"
	CategoryRoleManipulation    = "role_manipulation"
	CategorySystemExtraction    = "system_extraction"
	CategoryJailbreak           = "jailbreak"
	CategoryEncodingAttempt     = "encoding_attempt"
	CategoryDelimiterInjection  = "delimiter_injection"
)

// InjectionFinding 一次注入命中
type InjectionFinding struct {
	Category string `json:"category"`
	Matched  string `json:"matched"`
}

// SafetyLevel 内容安全等级
type SafetyLevel string

const (
	LevelSafe    SafetyLevel = "safe"
	LevelCaution SafetyLevel = "caution"
	LevelBlock   SafetyLevel = "block"
)

// Verdict 内容分级结果。Topic 为最高严重级别中第一个命中的话题。
type Verdict struct {
	Level  SafetyLevel `json:"level"`
	Topic  string      `json:"topic,omitempty"`
	Topics []string    `json:"topics,omitempty"`
}

// Decision Guard.Check 的结论，同时作为指标标签
type Decision string

const (
	DecisionAllow         Decision = "allow"
	DecisionCaution       Decision = "allow_flagged"
	DecisionRejectAbuse   Decision = "reject_abuse"
	DecisionRejectContent Decision = "reject_content"
)

// Rejected 是否拒绝
func (d Decision) Rejected() bool {
	return d == DecisionRejectAbuse || d == DecisionRejectContent
}
