package workflow

import (
	"context"
	"log/slog"

	"medwarehouse/internal/logging"
)

// InterruptedMessage is recorded on runs reclaimed after a crash.
const InterruptedMessage = "interrupted"

// ReclaimInterrupted marks runs left in a processing state as failed. It only
// touches the table when no other run holds the pipeline lock, so a live run
// in another process is never reclaimed.
func (m *Manager) ReclaimInterrupted(ctx context.Context) (int64, error) {
	locked, err := m.lock.TryExclusive()
	if err != nil {
		return 0, err
	}
	if !locked {
		return 0, nil
	}
	defer func() { _ = m.lock.Unlock() }()
	return m.reclaimLocked(ctx, m.logger)
}

func (m *Manager) reclaimLocked(ctx context.Context, logger *slog.Logger) (int64, error) {
	reclaimed, err := m.store.FailInterrupted(ctx, InterruptedMessage)
	if err != nil {
		logging.WarnWithContext(logger, "reclaim interrupted runs failed", "pipeline.reclaim_failed",
			logging.Error(err),
			logging.Impact("stale runs keep their processing status"),
			logging.Hint("check warehouse access"),
		)
		return 0, err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed interrupted runs",
			logging.String(logging.FieldEventType, "pipeline.reclaimed"),
			logging.Int64("count", reclaimed),
		)
	}
	return reclaimed, nil
}
