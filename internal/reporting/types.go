package reporting

import (
	"medwarehouse/internal/stage"
)

// ProductMention is one entry of the top products report.
type ProductMention struct {
	Term      string   `json:"term"`
	Frequency int      `json:"frequency"`
	Channels  []string `json:"channels"`
}

// ChannelStats summarizes one channel.
type ChannelStats struct {
	ChannelName        string  `json:"channel_name"`
	ChannelType        string  `json:"channel_type"`
	TotalMessages      int     `json:"total_messages"`
	AvgViews           float64 `json:"avg_views"`
	MessagesWithImages int     `json:"messages_with_images"`
	ImagePercentage    float64 `json:"image_percentage"`
}

// DailyActivity is one day of a channel's posting activity.
type DailyActivity struct {
	Date         string  `json:"date"`
	MessageCount int     `json:"message_count"`
	AvgViews     float64 `json:"avg_views"`
}

// MessageHit is a message matched by Search.
type MessageHit struct {
	MessageID   int64  `json:"message_id"`
	ChannelName string `json:"channel_name"`
	MessageDate string `json:"message_date"`
	MessageText string `json:"message_text"`
	Views       int    `json:"views"`
	Forwards    int    `json:"forwards"`
	HasImage    bool   `json:"has_image"`
}

// VisualContent reports image categories for one channel.
type VisualContent struct {
	ChannelName         string  `json:"channel_name"`
	TotalImages         int     `json:"total_images"`
	Promotional         int     `json:"promotional"`
	ProductDisplay      int     `json:"product_display"`
	Lifestyle           int     `json:"lifestyle"`
	Other               int     `json:"other"`
	PromotionalPct      float64 `json:"promotional_pct"`
	ProductDisplayPct   float64 `json:"product_display_pct"`
	LifestylePct        float64 `json:"lifestyle_pct"`
	OtherPct            float64 `json:"other_pct"`
	DetectionsAvailable bool    `json:"detections_available"`
}

// RunView describes a pipeline run.
type RunView struct {
	ID           string         `json:"id"`
	Partition    string         `json:"partition"`
	Status       string         `json:"status"`
	CurrentStage string         `json:"current_stage,omitempty"`
	ErrorKind    string         `json:"error_kind,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Stages       []stage.Result `json:"stages"`
	StartedAt    string         `json:"started_at"`
	UpdatedAt    string         `json:"updated_at"`
	FinishedAt   string         `json:"finished_at,omitempty"`
	DurationSecs float64        `json:"duration_seconds,omitempty"`
}

// Capability says which visual content builder serves.
type Capability string

const (
	CapabilityDetections Capability = "detections"
	CapabilityFallback   Capability = "fallback"
)
