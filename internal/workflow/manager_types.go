package workflow

import (
	"errors"
	"time"

	"medwarehouse/internal/services"
	"medwarehouse/internal/stage"
	"medwarehouse/internal/warehouse"
)

// ErrPipelineBusy is returned when another run holds the pipeline lock.
var ErrPipelineBusy = errors.New("another pipeline run is in progress")

// Stage names in pipeline order.
const (
	StageScraping     = "scraping"
	StageLoading      = "loading"
	StageTransforming = "transforming"
	StageEnriching    = "enriching"
)

// StageSet bundles the concrete handlers the manager orchestrates.
type StageSet struct {
	Scraper     stage.Handler
	Loader      stage.Handler
	Transformer stage.Handler
	Enricher    stage.Handler
}

type pipelineStage struct {
	name       string
	handler    stage.Handler
	processing warehouse.RunStatus
}

// RunOptions selects what a run does.
type RunOptions struct {
	// Partition is the lake date to scrape and load. Empty means today (UTC).
	Partition string
	// Stages restricts the run to the named stages, kept in pipeline order.
	// Empty runs every configured stage.
	Stages []string
}

// Report is the outcome of one run.
type Report struct {
	RunID      string                 `json:"run_id"`
	Partition  string                 `json:"partition"`
	Status     warehouse.RunStatus    `json:"status"`
	Stages     []stage.Result         `json:"stages"`
	LogPath    string                 `json:"log_path,omitempty"`
	Error      *services.ErrorDetails `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r == nil || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stage returns the result recorded for name.
func (r *Report) Stage(name string) (stage.Result, bool) {
	if r == nil {
		return stage.Result{}, false
	}
	for _, res := range r.Stages {
		if res.Stage == name {
			return res, true
		}
	}
	return stage.Result{}, false
}
