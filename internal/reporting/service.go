package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"medwarehouse/internal/config"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
	"medwarehouse/internal/stage"
	"medwarehouse/internal/warehouse"
	"medwarehouse/internal/workflow"
)

// ProductTerms are the terms counted by TopProducts.
var ProductTerms = []string{
	"paracetamol", "amoxicillin", "vitamin", "sanitizer", "mask",
	"cream", "tablet", "capsule", "injection", "syrup",
	"thermometer", "monitor", "kit", "powder", "drop",
}

// Limits applied to report arguments.
const (
	DefaultProductLimit = 10
	DefaultActivityDays = 7
	DefaultSearchLimit  = 20
	DefaultRunLimit     = 20
	MaxLimit            = 100
	MaxActivityDays     = 365
)

// Reader is the warehouse surface reporting reads from.
type Reader interface {
	TermMentions(ctx context.Context, term string) ([]warehouse.TermChannelCount, error)
	ChannelSummaries(ctx context.Context) ([]warehouse.ChannelSummary, error)
	ChannelActivity(ctx context.Context, channel, since string) ([]warehouse.ActivityPoint, error)
	ChannelExists(ctx context.Context, channel string) (bool, error)
	SearchMessages(ctx context.Context, query, channel string, limit int) ([]warehouse.SearchHit, error)
	VisualCountsFromDetections(ctx context.Context) ([]warehouse.VisualCounts, error)
	VisualCountsFromMessages(ctx context.Context) ([]warehouse.VisualCounts, error)
	HasDetectionMart(ctx context.Context) (bool, error)
	ListRuns(ctx context.Context, limit int) ([]warehouse.Run, error)
	GetRun(ctx context.Context, id string) (*warehouse.Run, error)
}

// Service answers report queries.
type Service struct {
	reader     Reader
	capability Capability
	logger     *slog.Logger
	now        func() time.Time
}

// NewService resolves the visual content capability and returns a Service.
// With image_detections=auto the detection mart is probed once here.
func NewService(ctx context.Context, cfg *config.Config, reader Reader, logger *slog.Logger) (*Service, error) {
	if reader == nil {
		return nil, services.Wrap(services.ErrConfiguration, "reporting", "init", "warehouse reader is required", nil)
	}
	svc := &Service{
		reader: reader,
		logger: logging.NewComponentLogger(logger, "reporting"),
		now:    time.Now,
	}
	mode := "auto"
	if cfg != nil {
		mode = cfg.API.ImageDetections
	}
	switch mode {
	case "enabled":
		svc.capability = CapabilityDetections
	case "disabled":
		svc.capability = CapabilityFallback
	default:
		has, err := reader.HasDetectionMart(ctx)
		if err != nil {
			return nil, err
		}
		svc.capability = CapabilityFallback
		if has {
			svc.capability = CapabilityDetections
		}
	}
	svc.logger.Debug("visual content capability resolved",
		logging.String("mode", mode),
		logging.String("capability", string(svc.capability)),
	)
	return svc, nil
}

// Capability reports the visual content builder in use.
func (s *Service) Capability() Capability {
	return s.capability
}

// TopProducts counts the messages mentioning each product term. Terms with no
// mentions are left out; the rest are ordered by frequency, then term.
func (s *Service) TopProducts(ctx context.Context, limit int) ([]ProductMention, error) {
	limit, err := normalizeLimit("limit", limit, DefaultProductLimit, MaxLimit)
	if err != nil {
		return nil, err
	}
	products := make([]ProductMention, 0, len(ProductTerms))
	for _, term := range ProductTerms {
		rows, err := s.reader.TermMentions(ctx, term)
		if err != nil {
			return nil, err
		}
		mention := ProductMention{Term: term, Channels: []string{}}
		for _, row := range rows {
			if row.Mentions <= 0 {
				continue
			}
			mention.Frequency += row.Mentions
			mention.Channels = append(mention.Channels, row.ChannelName)
		}
		if mention.Frequency == 0 {
			continue
		}
		sort.Strings(mention.Channels)
		products = append(products, mention)
	}
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].Frequency != products[j].Frequency {
			return products[i].Frequency > products[j].Frequency
		}
		return products[i].Term < products[j].Term
	})
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

// Channels summarizes every channel in the marts.
func (s *Service) Channels(ctx context.Context) ([]ChannelStats, error) {
	rows, err := s.reader.ChannelSummaries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ChannelStats, 0, len(rows))
	for _, row := range rows {
		out = append(out, ChannelStats{
			ChannelName:        row.ChannelName,
			ChannelType:        row.ChannelType,
			TotalMessages:      row.TotalMessages,
			AvgViews:           round2(row.AvgViews),
			MessagesWithImages: row.MessagesWithImages,
			ImagePercentage:    percent(row.MessagesWithImages, row.TotalMessages),
		})
	}
	return out, nil
}

// Activity returns the channel's daily counts for the last days days, newest
// first. An unknown channel is ErrNotFound.
func (s *Service) Activity(ctx context.Context, channel string, days int) ([]DailyActivity, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, services.Wrap(services.ErrValidation, "reporting", "activity", "channel name is required", nil)
	}
	days, err := normalizeLimit("days", days, DefaultActivityDays, MaxActivityDays)
	if err != nil {
		return nil, err
	}
	exists, err := s.reader.ChannelExists(ctx, channel)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, services.Wrap(services.ErrNotFound, "reporting", "activity", fmt.Sprintf("channel %q not found", channel), nil)
	}
	since := s.now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.reader.ChannelActivity(ctx, channel, since)
	if err != nil {
		return nil, err
	}
	out := make([]DailyActivity, 0, len(rows))
	for _, row := range rows {
		out = append(out, DailyActivity{
			Date:         dateOnly(row.Date),
			MessageCount: row.MessageCount,
			AvgViews:     round2(row.AvgViews),
		})
	}
	return out, nil
}

// Search finds messages containing query, most viewed first.
func (s *Service) Search(ctx context.Context, query, channel string, limit int) ([]MessageHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.Wrap(services.ErrValidation, "reporting", "search", "query is required", nil)
	}
	limit, err := normalizeLimit("limit", limit, DefaultSearchLimit, MaxLimit)
	if err != nil {
		return nil, err
	}
	rows, err := s.reader.SearchMessages(ctx, query, strings.TrimSpace(channel), limit)
	if err != nil {
		return nil, err
	}
	out := make([]MessageHit, 0, len(rows))
	for _, row := range rows {
		out = append(out, MessageHit{
			MessageID:   row.MessageID,
			ChannelName: row.ChannelName,
			MessageDate: dateOnly(row.MessageDate),
			MessageText: row.MessageText,
			Views:       row.Views,
			Forwards:    row.Forwards,
			HasImage:    row.HasImage,
		})
	}
	return out, nil
}

// VisualContent reports image categories per channel using the builder
// chosen at construction.
func (s *Service) VisualContent(ctx context.Context) ([]VisualContent, error) {
	var (
		rows []warehouse.VisualCounts
		err  error
	)
	full := s.capability == CapabilityDetections
	if full {
		rows, err = s.reader.VisualCountsFromDetections(ctx)
		if errors.Is(err, services.ErrNotFound) {
			logging.WarnWithContext(s.logger, "detection mart missing, serving message counts", "reporting.detections_missing",
				logging.Impact("visual content has no category breakdown"),
				logging.Hint("run medwh enrich to build fct_image_detections"),
			)
			full = false
		}
	}
	if !full {
		rows, err = s.reader.VisualCountsFromMessages(ctx)
	}
	if err != nil {
		return nil, err
	}
	out := make([]VisualContent, 0, len(rows))
	for _, row := range rows {
		out = append(out, VisualContent{
			ChannelName:         row.ChannelName,
			TotalImages:         row.TotalImages,
			Promotional:         row.Promotional,
			ProductDisplay:      row.ProductDisplay,
			Lifestyle:           row.Lifestyle,
			Other:               row.Other,
			PromotionalPct:      percent(row.Promotional, row.TotalImages),
			ProductDisplayPct:   percent(row.ProductDisplay, row.TotalImages),
			LifestylePct:        percent(row.Lifestyle, row.TotalImages),
			OtherPct:            percent(row.Other, row.TotalImages),
			DetectionsAvailable: full,
		})
	}
	return out, nil
}

// Runs lists recent pipeline runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]RunView, error) {
	limit, err := normalizeLimit("limit", limit, DefaultRunLimit, MaxLimit)
	if err != nil {
		return nil, err
	}
	runs, err := s.reader.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunView, 0, len(runs))
	for _, run := range runs {
		out = append(out, s.runView(run))
	}
	return out, nil
}

// Run describes one pipeline run.
func (s *Service) Run(ctx context.Context, id string) (*RunView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "reporting", "run", "run id is required", nil)
	}
	run, err := s.reader.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, services.Wrap(services.ErrNotFound, "reporting", "run", fmt.Sprintf("run %s not found", id), nil)
	}
	view := s.runView(*run)
	return &view, nil
}

func (s *Service) runView(run warehouse.Run) RunView {
	view := RunView{
		ID:           run.ID,
		Partition:    run.Partition,
		Status:       string(run.Status),
		CurrentStage: run.CurrentStage,
		ErrorKind:    run.ErrorKind,
		ErrorMessage: run.ErrorMessage,
		StartedAt:    formatTime(run.StartedAt),
		UpdatedAt:    formatTime(run.UpdatedAt),
	}
	results, err := workflow.DecodeStageResults(run)
	if err != nil {
		logging.WarnWithContext(s.logger, "stage results unreadable", "reporting.stage_results_invalid",
			logging.RunID(run.ID),
			logging.Error(err),
		)
	}
	if results == nil {
		results = []stage.Result{}
	}
	view.Stages = results
	if run.FinishedAt != nil {
		view.FinishedAt = formatTime(*run.FinishedAt)
		view.DurationSecs = round2(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}
	return view
}

func normalizeLimit(name string, value, fallback, maximum int) (int, error) {
	if value == 0 {
		return fallback, nil
	}
	if value < 1 || value > maximum {
		return 0, services.Wrap(services.ErrValidation, "reporting", "arguments",
			fmt.Sprintf("%s must be between 1 and %d", name, maximum), nil)
	}
	return value, nil
}

func percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round2(float64(part) * 100 / float64(total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// dateOnly trims driver-specific timestamp suffixes from a DATE column.
func dateOnly(value string) string {
	if len(value) >= 10 {
		return value[:10]
	}
	return value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
