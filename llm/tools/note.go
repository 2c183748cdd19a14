package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/internal/store"
)

// DefaultTimezone 笔记时间戳使用的业务时区
const DefaultTimezone = "America/New_York"

var noteSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "conversation_id": {"type": "string", "description": "Current conversation id"},
    "customer_id": {"type": "string", "description": "Customer id returned by lookup_customer"},
    "summary": {"type": "string", "description": "Short note about what the person wanted"}
  },
  "required": ["conversation_id", "customer_id", "summary"],
  "additionalProperties": false
}`)

// WrittenNote 返回给模型的笔记内容
type WrittenNote struct {
	ConversationID string `json:"conversation_id"`
	Summary        string `json:"summary"`
	Timestamp      string `json:"ts"`
}

// NoteResult add_note 的返回值
type NoteResult struct {
	OK      bool         `json:"ok"`
	NoteID  string       `json:"note_id,omitempty"`
	Written *WrittenNote `json:"written,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

// NoteWriter add_note 工具
type NoteWriter struct {
	store  store.Store
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// NewNoteWriter tz 为 IANA 时区名，空串使用 DefaultTimezone
func NewNoteWriter(s store.Store, tz string, logger *zap.Logger) (*NoteWriter, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoteWriter{store: s, loc: loc, now: time.Now, logger: logger.With(zap.String("tool", ToolAddNote))}, nil
}

func (w *NoteWriter) Tool() (ToolFunc, ToolMetadata) {
	fn := func(ctx context.Context, args map[string]any) (any, error) {
		conversationID, _ := args["conversation_id"].(string)
		customerID, _ := args["customer_id"].(string)
		summary, _ := args["summary"].(string)
		return w.Add(ctx, conversationID, customerID, summary), nil
	}
	return fn, ToolMetadata{
		Schema: schema(ToolAddNote,
			"Store a short CRM note about what this person wanted, for later follow-up.",
			noteSchema),
		Timeout: 10 * time.Second,
	}
}

// Add 写入一条笔记
func (w *NoteWriter) Add(ctx context.Context, conversationID, customerID, summary string) NoteResult {
	if w.store == nil {
		return NoteResult{OK: false, Reason: ReasonStoreUnavailable}
	}
	now := w.now()
	note := &store.Note{
		CustomerID:     customerID,
		ConversationID: conversationID,
		Summary:        summary,
		Timestamp:      now.In(w.loc).Format(time.RFC3339),
		CreatedAt:      now.UTC(),
	}
	if err := w.store.AddNote(ctx, note); err != nil {
		w.logger.Error("add note failed", zap.String("customer_id", customerID), zap.Error(err))
		return NoteResult{OK: false, Reason: reasonStoreErrorPrefix + err.Error()}
	}
	w.logger.Info("note added", zap.String("customer_id", customerID), zap.String("note_id", note.ID))
	return NoteResult{
		OK:     true,
		NoteID: note.ID,
		Written: &WrittenNote{
			ConversationID: conversationID,
			Summary:        summary,
			Timestamp:      note.Timestamp,
		},
	}
}
