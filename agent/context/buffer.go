package context

import (
	"sync"

	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// Buffer defaults.
const (
	DefaultBufferMessages = 100
	DefaultBufferTokens   = 50000
)

// Buffer is an append-only conversation buffer. When it grows past
// MaxMessages or MaxTokens the oldest messages are dropped, but the
// newest message is always kept.
type Buffer struct {
	mu          sync.Mutex
	messages    []types.Message
	maxMessages int
	maxTokens   int
	window      *WindowManager
}

// NewBuffer creates a Buffer. Non-positive limits select the defaults.
func NewBuffer(maxMessages, maxTokens int, window *WindowManager) *Buffer {
	if maxMessages <= 0 {
		maxMessages = DefaultBufferMessages
	}
	if maxTokens <= 0 {
		maxTokens = DefaultBufferTokens
	}
	if window == nil {
		window = defaultWindow
	}
	return &Buffer{maxMessages: maxMessages, maxTokens: maxTokens, window: window}
}

// Add appends a message and trims the front.
func (b *Buffer) Add(m types.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, m)
	b.trimLocked()
}

func (b *Buffer) trimLocked() {
	if over := len(b.messages) - b.maxMessages; over > 0 {
		b.messages = b.messages[over:]
	}
	counter := b.window.Counter()
	for len(b.messages) > 1 && counter.CountConversation(b.messages) > b.maxTokens {
		b.messages = b.messages[1:]
	}
}

// Messages returns a copy of the buffered messages.
func (b *Buffer) Messages() []types.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Len returns the number of buffered messages.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}

// ForCompletion prepends systemPrompt (when non-empty) and trims the
// result to the buffer's token limit.
func (b *Buffer) ForCompletion(systemPrompt string) []types.Message {
	msgs := b.Messages()
	if systemPrompt != "" {
		msgs = append([]types.Message{types.NewSystemMessage(systemPrompt)}, msgs...)
	}
	opts := DefaultTrimOptions("")
	opts.MaxTokens = b.maxTokens
	return b.window.Trim(msgs, opts)
}
