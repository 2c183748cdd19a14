package context

// ResponseTokenReserve 为模型回复预留的 token
const ResponseTokenReserve = 4096

// DefaultContextLimit 未知模型的上下文长度
const DefaultContextLimit = 8192

// MaxUserMessageTokens 单条用户消息的估算上限
const MaxUserMessageTokens = 8000

var modelContextLimits = map[string]int{
	"gpt-4o-mini":   128000,
	"gpt-4o":        128000,
	"gpt-4-turbo":   128000,
	"gpt-4":         8192,
	"gpt-3.5-turbo": 16385,
}

// ModelContextLimit 返回模型的上下文长度
func ModelContextLimit(model string) int {
	if n, ok := modelContextLimits[model]; ok {
		return n
	}
	return DefaultContextLimit
}
