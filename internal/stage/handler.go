package stage

import (
	"context"
	"log/slog"
	"time"
)

// Status is the terminal outcome of one stage within a run.
type Status string

const (
	StatusCompleted Status = "completed"
	// StatusPartial means the stage finished but some inputs were left behind.
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Input is what the coordinator hands every stage.
type Input struct {
	RunID     string
	Partition string
	// Previous is the result of the stage that ran immediately before, or nil.
	Previous *Result
}

// Result records what a stage did.
type Result struct {
	Stage     string         `json:"stage"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Output    string         `json:"output,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Prepare(context.Context, Input) error
	Execute(context.Context, Input) (Result, error)
	HealthCheck(context.Context) Health
}

// LoggerAware handlers receive the run-scoped logger before Prepare.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
