package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"medwarehouse/internal/config"
	"medwarehouse/internal/lockfile"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/notifications"
	"medwarehouse/internal/warehouse"
)

// RunStore is the warehouse surface the manager persists runs through.
type RunStore interface {
	CreateRun(ctx context.Context, run *warehouse.Run) error
	UpdateRun(ctx context.Context, run *warehouse.Run) error
	FailInterrupted(ctx context.Context, message string) (int64, error)
	ListRuns(ctx context.Context, limit int) ([]warehouse.Run, error)
}

// Manager coordinates pipeline runs over the registered stage handlers.
type Manager struct {
	cfg      *config.Config
	store    RunStore
	logger   *slog.Logger
	notifier notifications.Service
	lock     *lockfile.Lock
	runLogs  *RunLogger

	stages []pipelineStage

	newID func() string
	now   func() time.Time
}

// NewManager constructs a manager publishing to the configured notifiers.
func NewManager(cfg *config.Config, store RunStore, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a manager with a custom notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store RunStore, logger *slog.Logger, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		notifier: notifier,
		lock:     lockfile.New(cfg.PipelineLockPath()),
		runLogs:  NewRunLogger(cfg),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}
