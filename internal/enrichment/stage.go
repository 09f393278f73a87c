package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"

	"medwarehouse/internal/detector"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/stage"
)

// StageName is the pipeline stage this package implements.
const StageName = "enriching"

// Stage adapts an Enricher to the pipeline contract.
type Stage struct {
	enricher *Enricher
}

// NewStage wraps an enricher.
func NewStage(enricher *Enricher) *Stage {
	return &Stage{enricher: enricher}
}

func (s *Stage) SetLogger(logger *slog.Logger) {
	s.enricher.logger = logging.NewComponentLogger(logger, "enrichment")
}

func (s *Stage) Prepare(context.Context, stage.Input) error { return nil }

// Execute enriches pending images. Per-image failures leave the stage partial.
func (s *Stage) Execute(ctx context.Context, _ stage.Input) (stage.Result, error) {
	summary, err := s.enricher.Run(ctx)
	if err != nil {
		return stage.Result{}, err
	}
	result := stage.Result{
		Message: fmt.Sprintf("%d images processed, %d failed, %d already enriched", summary.Processed, summary.Failed, summary.AlreadyEnriched),
		Counts: map[string]int{
			"candidates":      summary.Candidates,
			"processed":       summary.Processed,
			"failed":          summary.Failed,
			"inserted":        summary.Inserted,
			"detection_facts": summary.DetectionFacts,
		},
	}
	for category, n := range summary.ByCategory {
		result.Counts["category_"+category] = n
	}
	if summary.Failed > 0 {
		result.Status = stage.StatusPartial
	}
	return result, nil
}

func (s *Stage) HealthCheck(context.Context) stage.Health {
	switch det := s.enricher.detector.(type) {
	case *detector.Command:
		if _, err := exec.LookPath(det.Binary()); err != nil {
			return stage.Unhealthy(StageName, fmt.Sprintf("detector command %q not found", det.Binary()))
		}
	case *detector.HTTP:
		if u, err := url.Parse(det.Endpoint()); err != nil || u.Host == "" {
			return stage.Unhealthy(StageName, fmt.Sprintf("detector url %q is invalid", det.Endpoint()))
		}
	}
	return stage.Healthy(StageName)
}
