package workflow

import (
	"context"

	"medwarehouse/internal/logging"
	"medwarehouse/internal/stage"
	"medwarehouse/internal/warehouse"
)

// StatusSummary represents lightweight pipeline diagnostics.
type StatusSummary struct {
	Busy        bool           `json:"busy"`
	LastRun     *warehouse.Run `json:"last_run,omitempty"`
	StageHealth []stage.Health `json:"stage_health"`
}

// Status reports whether a run is active, the latest run, and every stage's health.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	var summary StatusSummary
	locked, err := m.lock.TryExclusive()
	switch {
	case err != nil:
		m.logger.Warn("failed to probe pipeline lock", logging.Error(err))
	case locked:
		_ = m.lock.Unlock()
	default:
		summary.Busy = true
	}

	runs, err := m.store.ListRuns(ctx, 1)
	if err != nil {
		m.logger.Warn("failed to read pipeline runs", logging.Error(err))
	} else if len(runs) > 0 {
		last := runs[0]
		summary.LastRun = &last
	}

	for _, stg := range m.stages {
		summary.StageHealth = append(summary.StageHealth, stg.handler.HealthCheck(ctx))
	}
	return summary
}
