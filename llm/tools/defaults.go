package tools

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/internal/store"
	"github.com/moguldesignsjordan/mogul-ai-agent/types"
)

// 内置工具名
const (
	ToolGetBookingLink = "get_booking_link"
	ToolLookupCustomer = "lookup_customer"
	ToolAddNote        = "add_note"
)

func schema(name, description string, params json.RawMessage) types.ToolSchema {
	return types.ToolSchema{Name: name, Description: description, Parameters: params}
}

// Dependencies 内置工具的依赖，Store 与 Cache 可以为 nil
type Dependencies struct {
	Store    store.Store
	Cache    LookupCache
	CacheTTL time.Duration
	Booking  BookingConfig
	Timezone string
}

// NewBuiltinRegistry 注册 get_booking_link、lookup_customer、add_note
func NewBuiltinRegistry(deps Dependencies, logger *zap.Logger) (*DefaultRegistry, error) {
	reg := NewDefaultRegistry(logger)

	fn, meta := NewBookingTool(deps.Booking)
	if err := reg.Register(ToolGetBookingLink, fn, meta); err != nil {
		return nil, err
	}

	fn, meta = NewCustomerLookup(deps.Store, deps.Cache, deps.CacheTTL, logger).Tool()
	if err := reg.Register(ToolLookupCustomer, fn, meta); err != nil {
		return nil, err
	}

	writer, err := NewNoteWriter(deps.Store, deps.Timezone, logger)
	if err != nil {
		return nil, err
	}
	fn, meta = writer.Tool()
	meta.RateLimit = &RateLimitConfig{MaxCalls: 30, Window: time.Minute}
	if err := reg.Register(ToolAddNote, fn, meta); err != nil {
		return nil, err
	}
	return reg, nil
}
