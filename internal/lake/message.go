package lake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message is the lake file contract for one scraped channel post.
type Message struct {
	MessageID   int64      `json:"message_id"`
	ChannelName string     `json:"channel_name"`
	MessageDate Timestamp  `json:"message_date"`
	MessageText string     `json:"message_text"`
	Views       int        `json:"views"`
	Forwards    int        `json:"forwards"`
	HasMedia    bool       `json:"has_media"`
	ImagePath   *string    `json:"image_path"`
	ScrapedAt   *Timestamp `json:"scraped_at,omitempty"`
}

// Validate checks the record-level invariants a loader relies on.
func (m Message) Validate() error {
	if m.MessageID <= 0 {
		return fmt.Errorf("message_id must be positive, got %d", m.MessageID)
	}
	if strings.TrimSpace(m.ChannelName) == "" {
		return fmt.Errorf("message %d: channel_name is empty", m.MessageID)
	}
	if m.MessageDate.IsZero() {
		return fmt.Errorf("message %d: message_date is missing", m.MessageID)
	}
	if m.Views < 0 || m.Forwards < 0 {
		return fmt.Errorf("message %d: negative views or forwards", m.MessageID)
	}
	hasPath := m.ImagePath != nil && strings.TrimSpace(*m.ImagePath) != ""
	if m.HasMedia != hasPath {
		return fmt.Errorf("message %d: has_media=%t but image_path set=%t", m.MessageID, m.HasMedia, hasPath)
	}
	return nil
}

// ImagePathValue returns the image path or "" when absent.
func (m Message) ImagePathValue() string {
	if m.ImagePath == nil {
		return ""
	}
	return *m.ImagePath
}

// Timestamp accepts the ISO-8601 variants found in lake files. Values without
// a zone are read as UTC. It always marshals as RFC3339 in UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// NewTimestamp wraps t, normalized to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// ParseTimestamp parses one of the accepted layouts.
func ParseTimestamp(value string) (Timestamp, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
