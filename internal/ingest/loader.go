package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"medwarehouse/internal/config"
	"medwarehouse/internal/lake"
	"medwarehouse/internal/lockfile"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
	"medwarehouse/internal/warehouse"
)

// FileStatus is the outcome of loading one lake file.
type FileStatus string

const (
	FileLoaded FileStatus = "loaded"
	FileFailed FileStatus = "failed"
)

// FileReport describes one lake file.
type FileReport struct {
	Path     string     `json:"path"`
	Channel  string     `json:"channel"`
	Status   FileStatus `json:"status"`
	Inserted int        `json:"inserted"`
	Skipped  int        `json:"skipped"`
	Attempts int        `json:"attempts"`
	Error    string     `json:"error,omitempty"`
}

// LoadReport summarizes a partition load.
type LoadReport struct {
	Partition string       `json:"partition"`
	Files     []FileReport `json:"files"`
	Inserted  int          `json:"inserted"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
}

// FailedFiles lists the base names of files that did not load.
func (r LoadReport) FailedFiles() []string {
	var names []string
	for _, f := range r.Files {
		if f.Status == FileFailed {
			names = append(names, filepath.Base(f.Path))
		}
	}
	return names
}

// Store is the warehouse surface the loader writes through.
type Store interface {
	InsertMessages(ctx context.Context, messages []warehouse.Message) (warehouse.InsertStats, error)
}

// Loader applies lake partitions to raw_messages.
type Loader struct {
	layout   lake.Layout
	store    Store
	lock     *lockfile.Lock
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// DefaultRetryBackoff is the first delay between attempts on a file.
const DefaultRetryBackoff = 250 * time.Millisecond

// NewLoader builds a loader for the configured data directory.
func NewLoader(cfg *config.Config, store Store, logger *slog.Logger) *Loader {
	return &Loader{
		layout:   lake.Layout{DataDir: cfg.Paths.DataDir},
		store:    store,
		lock:     lockfile.New(cfg.RebuildLockPath()),
		attempts: cfg.Pipeline.LoadRetryAttempts,
		backoff:  DefaultRetryBackoff,
		logger:   logging.NewComponentLogger(logger, "ingest"),
	}
}

// WithBackoff overrides the retry base delay.
func (l *Loader) WithBackoff(d time.Duration) *Loader {
	l.backoff = d
	return l
}

// LoadPartition loads every channel file of partition in file-name order.
// Per-file failures are recorded in the report; the returned error is
// reserved for problems that stop the whole partition (bad date, missing
// directory, lock acquisition).
func (l *Loader) LoadPartition(ctx context.Context, partition string) (LoadReport, error) {
	report := LoadReport{Partition: partition}
	files, err := l.layout.ListPartition(partition)
	if err != nil {
		return report, err
	}

	// Shared: concurrent loads are fine, a mart rebuild is not.
	if err := l.lock.Shared(ctx); err != nil {
		return report, err
	}
	defer func() {
		if err := l.lock.Unlock(); err != nil {
			logging.WarnWithContext(l.logger, "failed to release rebuild lock", "ingest.unlock_failed", logging.Error(err))
		}
	}()

	logger := logging.WithContext(services.WithPartition(ctx, partition), l.logger)
	logger.Info("loading partition",
		logging.String(logging.FieldEventType, "ingest.partition_started"),
		logging.Int("files", len(files)),
	)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		fr := l.loadFile(ctx, logger, path)
		report.Files = append(report.Files, fr)
		report.Inserted += fr.Inserted
		report.Skipped += fr.Skipped
		if fr.Status == FileFailed {
			report.Failed++
		}
	}

	logger.Info("partition loaded",
		logging.String(logging.FieldEventType, "ingest.partition_loaded"),
		logging.Int("files", len(report.Files)),
		logging.Int("inserted", report.Inserted),
		logging.Int("skipped", report.Skipped),
		logging.Int("failed", report.Failed),
	)
	return report, nil
}

func (l *Loader) loadFile(ctx context.Context, logger *slog.Logger, path string) FileReport {
	fr := FileReport{
		Path:    path,
		Channel: strings.TrimSuffix(filepath.Base(path), ".json"),
		Status:  FileFailed,
	}
	fileLogger := logger.With(logging.Channel(fr.Channel), logging.String("path", path))

	var stats warehouse.InsertStats
	err := services.Retry(ctx, l.attempts, l.backoff, func(attempt int) error {
		fr.Attempts = attempt
		messages, err := lake.ReadFile(path)
		if err != nil {
			return err
		}
		stats, err = l.store.InsertMessages(ctx, toWarehouse(messages))
		return err
	}, func(attempt int, err error, delay time.Duration) {
		logging.WarnWithContext(fileLogger, "retrying lake file", "ingest.file_retry",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.Impact("file load delayed"),
		)
	})
	if err != nil {
		fr.Error = err.Error()
		logging.ErrorWithContext(fileLogger, "lake file failed to load", "ingest.file_failed",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.ErrorHint(err),
			logging.Int("attempts", fr.Attempts),
		)
		return fr
	}
	fr.Status = FileLoaded
	fr.Inserted = stats.Inserted
	fr.Skipped = stats.Skipped
	fileLogger.Debug("lake file loaded",
		logging.Int("inserted", stats.Inserted),
		logging.Int("skipped", stats.Skipped),
	)
	return fr
}

func toWarehouse(messages []lake.Message) []warehouse.Message {
	now := time.Now().UTC()
	out := make([]warehouse.Message, 0, len(messages))
	for _, msg := range messages {
		scraped := now
		if msg.ScrapedAt != nil && !msg.ScrapedAt.IsZero() {
			scraped = msg.ScrapedAt.Time
		}
		out = append(out, warehouse.Message{
			ChannelName:  msg.ChannelName,
			MessageID:    msg.MessageID,
			MessageDate:  msg.MessageDate.UTC(),
			MessageText:  msg.MessageText,
			ViewCount:    msg.Views,
			ForwardCount: msg.Forwards,
			HasMedia:     msg.HasMedia,
			ImagePath:    msg.ImagePathValue(),
			ScrapedAt:    scraped.UTC(),
		})
	}
	return out
}
