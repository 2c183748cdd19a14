package context

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/moguldesignsjordan/mogul-ai-agent/llm/tokenizer"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// 40 个字符、无空白 => 10 tokens，单条消息 14 tokens
func fixedUser(i int) types.Message {
	return types.NewUserMessage(strings.Repeat(string(rune('a'+i%26)), 40))
}

func conversation(n int) []types.Message {
	msgs := []types.Message{types.NewSystemMessage("sys")} // 3 + 4 + 1 = 8
	for i := 0; i < n; i++ {
		msgs = append(msgs, fixedUser(i))
	}
	return msgs
}

func TestModelContextLimit(t *testing.T) {
	assert.Equal(t, 128000, ModelContextLimit("gpt-4o-mini"))
	assert.Equal(t, 16385, ModelContextLimit("gpt-3.5-turbo"))
	assert.Equal(t, 8192, ModelContextLimit("gpt-4"))
	assert.Equal(t, 8192, ModelContextLimit("some-new-model"))
}

func TestBudgetFor(t *testing.T) {
	assert.Equal(t, 128000-4096, BudgetFor("gpt-4o", 0).Ceiling)
	assert.Equal(t, 4096, BudgetFor("unknown", 0).Ceiling)
	b := BudgetFor("gpt-4o", 3000)
	assert.Equal(t, 3000, b.Ceiling)
	assert.Equal(t, 128000, b.ModelLimit)
	assert.Equal(t, ResponseTokenReserve, b.ResponseReserve)
}

func TestTrim_FitsEverything(t *testing.T) {
	msgs := conversation(10)
	out := Trim(msgs, DefaultTrimOptions("gpt-4o-mini"))
	assert.Equal(t, msgs, out)
}

func TestTrim_DropsOldestFirst(t *testing.T) {
	msgs := conversation(10)
	opts := DefaultTrimOptions("gpt-4o-mini")
	// system 8 + tail 59 + 两条旧消息 28
	opts.MaxTokens = 8 + 59 + 28

	out := NewWindowManager(nil, zap.NewNop()).Trim(msgs, opts)
	require.Len(t, out, 7)
	assert.Equal(t, types.RoleSystem, out[0].Role)
	assert.Equal(t, msgs[5:], out[1:])
}

func TestTrim_SystemOverBudget(t *testing.T) {
	msgs := conversation(3)
	opts := DefaultTrimOptions("")
	opts.MaxTokens = 5

	out := Trim(msgs, opts)
	require.Len(t, out, 1)
	assert.Equal(t, types.RoleSystem, out[0].Role)
}

func TestTrim_TailOverBudget(t *testing.T) {
	msgs := conversation(10)
	opts := DefaultTrimOptions("")
	opts.MaxTokens = 8 + 30

	out := Trim(msgs, opts)
	require.Len(t, out, 5)
	assert.Equal(t, msgs[7:], out[1:])
}

func TestTrim_StopsAtFirstMisfit(t *testing.T) {
	msgs := []types.Message{
		types.NewUserMessage("hi"),                     // 5
		types.NewUserMessage(strings.Repeat("x", 400)), // 104
		types.NewUserMessage("hey"),                    // 5
		types.NewAssistantMessage("ok"),                // 5
	}
	opts := TrimOptions{MaxTokens: 3 + 5 + 10, PreserveSystem: true, PreserveRecent: 1}

	out := Trim(msgs, opts)
	// "hi" 虽然放得下，但更近的长消息放不下，遍历在此停止
	assert.Equal(t, msgs[2:], out)
}

func TestTrim_EdgeCases(t *testing.T) {
	assert.Empty(t, Trim(nil, DefaultTrimOptions("")))

	msgs := conversation(2)
	opts := DefaultTrimOptions("")
	opts.PreserveRecent = 10
	assert.Equal(t, msgs, Trim(msgs, opts))

	opts.PreserveRecent = 0
	opts.MaxTokens = 8 + 3 + 14
	out := Trim(msgs, opts)
	assert.Equal(t, []types.Message{msgs[0], msgs[2]}, out)
}

// 没有系统消息、也不保留最近消息时，会话开销仍计入预算
func TestTrim_ChargesConversationOverheadOnce(t *testing.T) {
	msgs := []types.Message{fixedUser(0)} // 14 + 3 = 17
	opts := TrimOptions{PreserveSystem: true, PreserveRecent: 0}

	opts.MaxTokens = 14
	assert.Empty(t, Trim(msgs, opts))

	opts.MaxTokens = 17
	out := Trim(msgs, opts)
	assert.Equal(t, msgs, out)
	assert.Equal(t, 17, defaultWindow.Counter().CountConversation(out))

	// 系统消息与最近消息同时存在时只收一次开销：3 + 5 + 14
	withSystem := []types.Message{types.NewSystemMessage("sys"), fixedUser(1)}
	opts = TrimOptions{MaxTokens: 22, PreserveSystem: true, PreserveRecent: 1}
	assert.Equal(t, withSystem, Trim(withSystem, opts))
}

func TestTrim_PreserveSystemOff(t *testing.T) {
	msgs := conversation(4)
	opts := TrimOptions{MaxTokens: 3 + 14*2, PreserveRecent: 2}
	out := Trim(msgs, opts)
	assert.Equal(t, msgs[3:], out)
}

// 属性：系统消息保留、结果为非系统消息的后缀、能放下时不超预算
func TestProperty_Trim_Invariants(t *testing.T) {
	w := NewWindowManager(nil, nil)
	rapid.Check(t, func(rt *rapid.T) {
		withSystem := rapid.Bool().Draw(rt, "withSystem")
		n := rapid.IntRange(0, 30).Draw(rt, "n")
		var msgs []types.Message
		if withSystem {
			msgs = append(msgs, types.NewSystemMessage(rapid.StringMatching(`[a-z ]{1,80}`).Draw(rt, "system")))
		}
		for i := 0; i < n; i++ {
			role := rapid.SampledFrom([]types.Role{types.RoleUser, types.RoleAssistant}).Draw(rt, "role")
			text := rapid.StringMatching(`[a-z \n]{1,200}`).Draw(rt, "text")
			msgs = append(msgs, types.Message{Role: role, Content: types.TextContent(text)})
		}
		opts := TrimOptions{
			MaxTokens:      rapid.IntRange(1, 1500).Draw(rt, "max"),
			PreserveSystem: true,
			PreserveRecent: rapid.IntRange(0, 6).Draw(rt, "recent"),
		}

		out := w.Trim(msgs, opts)

		var sysIn, otherIn, sysOut, otherOut []types.Message
		for _, m := range msgs {
			if m.Role == types.RoleSystem {
				sysIn = append(sysIn, m)
			} else {
				otherIn = append(otherIn, m)
			}
		}
		for _, m := range out {
			if m.Role == types.RoleSystem {
				sysOut = append(sysOut, m)
			} else {
				otherOut = append(otherOut, m)
			}
		}
		assert.Equal(t, sysIn, sysOut, "system messages always kept")
		if len(sysOut) > 0 {
			assert.Equal(t, types.RoleSystem, out[0].Role)
		}
		if len(otherOut) > 0 {
			assert.Equal(t, otherIn[len(otherIn)-len(otherOut):], otherOut, "kept history is a suffix")
		}

		counter := w.Counter()
		recent := opts.PreserveRecent
		if recent > len(otherIn) {
			recent = len(otherIn)
		}
		tail := otherIn[len(otherIn)-recent:]
		sysTokens := counter.CountConversation(sysIn)
		tailTokens := counter.CountConversation(tail) - tokenizer.ConversationOverhead
		if sysTokens < opts.MaxTokens && sysTokens+tailTokens <= opts.MaxTokens {
			assert.GreaterOrEqual(t, len(otherOut), recent, "recent messages kept")
			assert.LessOrEqual(t, counter.CountConversation(out), opts.MaxTokens)
		}
	})
}
