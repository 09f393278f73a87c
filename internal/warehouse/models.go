package warehouse

import "time"

// Message is one raw scraped post. (ChannelName, MessageID) is its natural key.
type Message struct {
	ChannelName  string
	MessageID    int64
	MessageDate  time.Time
	MessageText  string
	ViewCount    int
	ForwardCount int
	HasMedia     bool
	ImagePath    string // empty when HasMedia is false
	ScrapedAt    time.Time
}

// InsertStats counts the outcome of an insert-or-skip batch.
type InsertStats struct {
	Inserted int
	Skipped  int
}

// Add accumulates another batch's counts.
func (s *InsertStats) Add(other InsertStats) {
	s.Inserted += other.Inserted
	s.Skipped += other.Skipped
}

// Detection is one enriched image row. (MessageID, ImagePath) is its natural key.
type Detection struct {
	MessageID       int64
	ChannelName     string
	ImagePath       string
	DetectedClass   string
	ConfidenceScore float64
	ImageCategory   string
	DetectionCount  int
	DetectedAt      time.Time
}

// ChannelRow is a dim_channels row.
type ChannelRow struct {
	ChannelKey  int     `db:"channel_key" json:"channel_key"`
	ChannelName string  `db:"channel_name" json:"channel_name"`
	ChannelType string  `db:"channel_type" json:"channel_type"`
	TotalPosts  int     `db:"total_posts" json:"total_posts"`
	AvgViews    float64 `db:"avg_views" json:"avg_views"`
}

// DateRow is a dim_dates row.
type DateRow struct {
	DateKey    int    `db:"date_key"`
	FullDate   string `db:"full_date"`
	Year       int    `db:"year"`
	Quarter    int    `db:"quarter"`
	Month      int    `db:"month"`
	MonthName  string `db:"month_name"`
	DayOfMonth int    `db:"day_of_month"`
	DayOfWeek  int    `db:"day_of_week"`
	DayName    string `db:"day_name"`
	WeekOfYear int    `db:"week_of_year"`
	IsWeekend  bool   `db:"is_weekend"`
}

// MessageFact is a fct_messages row.
type MessageFact struct {
	MessageID     int64  `db:"message_id"`
	ChannelKey    int    `db:"channel_key"`
	DateKey       int    `db:"date_key"`
	MessageText   string `db:"message_text"`
	MessageLength int    `db:"message_length"`
	ViewCount     int    `db:"view_count"`
	ForwardCount  int    `db:"forward_count"`
	HasImage      bool   `db:"has_image"`
}

// DetectionFact is a fct_image_detections row.
type DetectionFact struct {
	MessageID       int64
	ChannelKey      int
	ImagePath       string
	DetectedClass   string
	ConfidenceScore float64
	ImageCategory   string
	DetectionCount  int
	DetectedAt      time.Time
}

// Marts is a complete replacement set for the message star schema.
type Marts struct {
	Channels []ChannelRow
	Dates    []DateRow
	Facts    []MessageFact
	// With WithDetections set, fct_image_detections is replaced by Detections
	// in the same transaction, and created if missing.
	WithDetections bool
	Detections     []DetectionFact
}

// RunStatus is the pipeline run state persisted in pipeline_runs.
type RunStatus string

const (
	RunIdle         RunStatus = "idle"
	RunScraping     RunStatus = "scraping"
	RunLoading      RunStatus = "loading"
	RunTransforming RunStatus = "transforming"
	RunEnriching    RunStatus = "enriching"
	RunDone         RunStatus = "done"
	RunFailed       RunStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunDone || s == RunFailed
}

// IsProcessing reports whether a stage is executing.
func (s RunStatus) IsProcessing() bool {
	switch s {
	case RunScraping, RunLoading, RunTransforming, RunEnriching:
		return true
	default:
		return false
	}
}

// Run is one persisted pipeline run.
type Run struct {
	ID           string     `json:"run_id"`
	Partition    string     `json:"partition"`
	Status       RunStatus  `json:"status"`
	CurrentStage string     `json:"current_stage,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StageResults string     `json:"-"`
	StartedAt    time.Time  `json:"started_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
