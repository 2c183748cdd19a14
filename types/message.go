// Package types provides the core conversation and error types shared by every
// package in the agent backend.
// This package has ZERO dependencies on other internal packages to avoid circular imports.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// PartType identifies a structured content part.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// ImageURL references an image attached to a user message.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ContentPart is one segment of multi-part content.
type ContentPart struct {
	Type     PartType  `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Content is either plain text or a list of typed parts.
// The zero value is empty text content.
type Content struct {
	Text  string
	Parts []ContentPart
}

// TextContent wraps plain text.
func TextContent(s string) Content { return Content{Text: s} }

// PartsContent wraps a list of parts.
func PartsContent(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{Parts: parts}
}

// IsParts reports whether the content is the multi-part variant.
func (c Content) IsParts() bool { return c.Parts != nil }

// IsEmpty reports whether the content carries no text and no parts.
func (c Content) IsEmpty() bool {
	if c.IsParts() {
		return len(c.Parts) == 0
	}
	return c.Text == ""
}

// String flattens the content to text. Image parts are skipped.
func (c Content) String() string {
	if !c.IsParts() {
		return c.Text
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// MapText returns a copy with fn applied to the text, or to every text part.
func (c Content) MapText(fn func(string) string) Content {
	if !c.IsParts() {
		return Content{Text: fn(c.Text)}
	}
	parts := make([]ContentPart, len(c.Parts))
	for i, p := range c.Parts {
		if p.Type == PartText {
			p.Text = fn(p.Text)
		}
		parts[i] = p
	}
	return Content{Parts: parts}
}

// MarshalJSON encodes text as a JSON string and parts as an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsParts() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts null, a string, or an array of parts.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	case data[0] == '[':
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = PartsContent(parts...)
		return nil
	}
	return fmt.Errorf("content must be a string, an array of parts, or null")
}

// ToolCall represents a tool invocation request from the LLM.
// Arguments holds the raw JSON text exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message represents a conversation message.
type Message struct {
	Role       Role       `json:"role"`
	Content    Content    `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// MarshalJSON omits empty content so tool-request messages encode as the
// upstream APIs expect.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message
	out := struct {
		alias
		Content *Content `json:"content,omitempty"`
	}{alias: alias(m)}
	if !m.Content.IsEmpty() {
		c := m.Content
		out.Content = &c
	}
	return json.Marshal(out)
}

// Validate checks the role-specific shape of a message.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("invalid role: %q", m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("tool message requires tool_call_id")
	}
	return nil
}

// NewMessage creates a new text message with the given role.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: TextContent(content)}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewToolMessage creates a new tool result message.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    TextContent(content),
		Name:       name,
		ToolCallID: toolCallID,
	}
}

// WithToolCalls adds tool calls to the message.
func (m Message) WithToolCalls(calls []ToolCall) Message {
	m.ToolCalls = calls
	return m
}

// LastUserIndex returns the index of the latest user message, or -1.
func LastUserIndex(msgs []Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return i
		}
	}
	return -1
}
