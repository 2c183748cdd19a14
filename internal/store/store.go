// Package store persists CRM data used by the agent tools and the chat
// transcript log. GormStore backs it with postgres, mysql or sqlite through
// internal/database; MongoStore backs it with a MongoDB collection set.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup has no match.
var ErrNotFound = errors.New("store: not found")

// Customer is a CRM contact record.
type Customer struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64" bson:"_id"`
	Name      string    `json:"name,omitempty" gorm:"size:255" bson:"name,omitempty"`
	Email     string    `json:"email,omitempty" gorm:"size:255;index" bson:"email,omitempty"`
	Phone     string    `json:"phone,omitempty" gorm:"size:32;index" bson:"phone,omitempty"`
	Company   string    `json:"company,omitempty" gorm:"size:255" bson:"company,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Note is a conversation summary attached to a customer.
// Timestamp is the ISO-8601 time in the business timezone.
type Note struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64" bson:"_id"`
	CustomerID     string    `json:"customer_id" gorm:"size:64;index" bson:"customer_id"`
	ConversationID string    `json:"conversation_id" gorm:"size:128" bson:"conversation_id"`
	Summary        string    `json:"summary" gorm:"type:text" bson:"summary"`
	Timestamp      string    `json:"ts" gorm:"column:ts;size:64" bson:"ts"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}

// TableName keeps the gorm table in line with the SQL migrations.
func (Note) TableName() string { return "customer_notes" }

// ChatLog is one chat exchange as served to a caller.
type ChatLog struct {
	ID           string    `json:"id" gorm:"primaryKey;size:64" bson:"_id"`
	RequestID    string    `json:"request_id" gorm:"size:64;index" bson:"request_id"`
	CallerID     string    `json:"caller_id" gorm:"size:128;index" bson:"caller_id"`
	Channel      string    `json:"channel" gorm:"size:16" bson:"channel"`
	UserMessage  string    `json:"user_message" gorm:"type:text" bson:"user_message"`
	Reply        string    `json:"reply" gorm:"type:text" bson:"reply"`
	MessageCount int       `json:"message_count" bson:"message_count"`
	ToolCalls    int       `json:"tool_calls" bson:"tool_calls"`
	TotalTokens  int       `json:"total_tokens" bson:"total_tokens"`
	LatencyMs    int64     `json:"latency_ms" bson:"latency_ms"`
	CreatedAt    time.Time `json:"created_at" gorm:"index" bson:"created_at"`
}

// Chat log channels.
const (
	ChannelWeb   = "web"
	ChannelWS    = "ws"
	ChannelSMS   = "sms"
	ChannelVoice = "voice"
)

// Store is the persistence contract for the agent backend.
type Store interface {
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error)
	UpsertCustomer(ctx context.Context, c *Customer) error

	AddNote(ctx context.Context, n *Note) error
	ListNotes(ctx context.Context, customerID string, limit int) ([]Note, error)

	SaveChatLog(ctx context.Context, l *ChatLog) error

	Ping(ctx context.Context) error
	Close() error
	Name() string
}

const defaultNoteLimit = 20

func noteLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return defaultNoteLimit
	}
	return limit
}
