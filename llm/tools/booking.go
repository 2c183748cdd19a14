package tools

import (
	"context"
	"encoding/json"
)

// DefaultBookingURL 默认的 Cal.com 预约链接
const DefaultBookingURL = "https://cal.com/jordan-c-cmbf7z/30min?overlayCalendar=true"

// DefaultBookingLabel 预约按钮文案
const DefaultBookingLabel = "Book a 30-minute call"

// BookingConfig get_booking_link 配置
type BookingConfig struct {
	URL   string
	Label string
}

// BookingLink get_booking_link 的返回值
type BookingLink struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

var bookingSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// NewBookingTool 返回公开预约链接，不做自动预约
func NewBookingTool(cfg BookingConfig) (ToolFunc, ToolMetadata) {
	link := BookingLink{URL: cfg.URL, Label: cfg.Label}
	if link.URL == "" {
		link.URL = DefaultBookingURL
	}
	if link.Label == "" {
		link.Label = DefaultBookingLabel
	}
	fn := func(ctx context.Context, _ map[string]any) (any, error) {
		return link, nil
	}
	return fn, ToolMetadata{Schema: schema(ToolGetBookingLink,
		"Return the public booking link so the user can schedule a call, check availability or get on the calendar.",
		bookingSchema)}
}
