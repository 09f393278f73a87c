package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"medwarehouse/internal/config"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/stage"
)

// StageName is the pipeline stage this package implements.
const StageName = "scraping"

// Stage adapts a Scraper to the pipeline contract.
type Stage struct {
	cfg     *config.Config
	source  Source
	scraper *Scraper
}

// NewStage builds the scraping stage over source.
func NewStage(cfg *config.Config, source Source, logger *slog.Logger) *Stage {
	return &Stage{cfg: cfg, source: source, scraper: NewScraper(cfg, source, logger)}
}

func (s *Stage) SetLogger(logger *slog.Logger) {
	s.scraper.logger = logging.NewComponentLogger(logger, "scraper")
}

func (s *Stage) Prepare(_ context.Context, in stage.Input) error {
	return stage.RequirePartition(StageName, in)
}

func (s *Stage) Execute(ctx context.Context, in stage.Input) (stage.Result, error) {
	report, err := s.scraper.Run(ctx, in.Partition)
	result := stage.Result{
		Message: fmt.Sprintf("%d messages from %d channels via %s", report.Messages, len(report.Channels)-report.Failed, report.Source),
		Counts: map[string]int{
			"channels": len(report.Channels),
			"messages": report.Messages,
			"images":   report.Images,
			"failed":   report.Failed,
		},
	}
	return result, err
}

func (s *Stage) HealthCheck(context.Context) stage.Health {
	if len(s.cfg.Scraper.Channels) == 0 {
		return stage.Unhealthy(StageName, "no channels configured")
	}
	if s.source.Name() == "telegram" {
		if _, err := os.Stat(s.cfg.Telegram.SessionPath); err != nil {
			return stage.Unhealthy(StageName, "telegram session missing; run medwh telegram login")
		}
	}
	return stage.Healthy(StageName)
}
