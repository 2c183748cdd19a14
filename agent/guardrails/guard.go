package guardrails

import (
	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// CheckResult Guard.Check 的结果
type CheckResult struct {
	Decision  Decision
	Reason    string            // 拒绝原因
	Injection *InjectionFinding // 最新用户消息中的注入命中
	Verdict   Verdict
	Messages  []types.Message // 放行时为清洗后的消息，拒绝时为原消息
}

// Safe 是否放行
func (r CheckResult) Safe() bool { return !r.Decision.Rejected() }

// Guard 组合注入检测、滥用检测、内容分级与清洗
type Guard struct {
	injection *InjectionDetector
	safety    *ContentSafety
	abuse     *AbuseDetector
	maxLength int
	logger    *zap.Logger
}

// NewGuard abuse 为 nil 时跳过滥用检测
func NewGuard(injection *InjectionDetector, safety *ContentSafety, abuse *AbuseDetector, maxLength int, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if injection == nil {
		injection, _ = NewInjectionDetector(nil)
	}
	if safety == nil {
		safety = NewContentSafety()
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxInputLength
	}
	return &Guard{
		injection: injection,
		safety:    safety,
		abuse:     abuse,
		maxLength: maxLength,
		logger:    logger.With(zap.String("component", "guardrails")),
	}
}

// Sanitize 只做清洗（护栏关闭时使用）
func (g *Guard) Sanitize(msgs []types.Message) []types.Message {
	return SanitizeMessages(msgs, g.maxLength, g.logger)
}

// Check 对最新一条用户消息做完整检查，没有用户消息时直接放行且不清洗
func (g *Guard) Check(msgs []types.Message, callerID string) CheckResult {
	idx := types.LastUserIndex(msgs)
	if idx < 0 {
		return CheckResult{Decision: DecisionAllow, Verdict: Verdict{Level: LevelSafe}, Messages: msgs}
	}
	content := msgs[idx].Content.String()

	res := CheckResult{Messages: msgs}
	res.Injection = g.injection.Find(content)
	if res.Injection != nil {
		g.logger.Warn("potential prompt injection detected",
			zap.String("caller_id", callerID),
			zap.String("category", res.Injection.Category),
			zap.String("matched", truncate(res.Injection.Matched, 50)))
	}

	if g.abuse != nil {
		if abusive, reason := g.abuse.CheckAndRecord(callerID, content, res.Injection != nil); abusive {
			res.Decision = DecisionRejectAbuse
			res.Reason = reason
			res.Verdict = Verdict{Level: LevelSafe}
			g.logger.Warn("request rejected",
				zap.String("caller_id", callerID),
				zap.String("decision", string(res.Decision)),
				zap.String("reason", reason))
			return res
		}
	}

	res.Verdict = g.safety.Classify(content)
	if res.Verdict.Level == LevelBlock {
		res.Decision = DecisionRejectContent
		res.Reason = "Content flagged for safety review"
		g.logger.Warn("request rejected",
			zap.String("caller_id", callerID),
			zap.String("decision", string(res.Decision)),
			zap.String("topic", res.Verdict.Topic),
			zap.Strings("flagged", res.Verdict.Topics))
		return res
	}

	res.Messages = g.Sanitize(msgs)
	res.Decision = DecisionAllow
	if res.Injection != nil || res.Verdict.Level == LevelCaution {
		res.Decision = DecisionCaution
		fields := []zap.Field{
			zap.String("caller_id", callerID),
			zap.String("decision", string(res.Decision)),
			zap.Bool("injection_detected", res.Injection != nil),
			zap.String("safety_level", string(res.Verdict.Level)),
			zap.Strings("flagged_topics", res.Verdict.Topics),
		}
		if res.Injection != nil {
			fields = append(fields, zap.String("category", res.Injection.Category))
		}
		g.logger.Info("request allowed with caution", fields...)
	}
	return res
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
