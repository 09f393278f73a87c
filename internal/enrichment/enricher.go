package enrichment

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"medwarehouse/internal/config"
	"medwarehouse/internal/detection"
	"medwarehouse/internal/detector"
	"medwarehouse/internal/lake"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
	"medwarehouse/internal/warehouse"
)

// CSVFileName is the detection export written under the enriched directory.
const CSVFileName = "image_detections.csv"

// Store is the warehouse surface used by enrichment.
type Store interface {
	MessagesWithImages(ctx context.Context) ([]warehouse.Message, error)
	DetectedImagePaths(ctx context.Context) (map[string]struct{}, error)
	InsertDetections(ctx context.Context, detections []warehouse.Detection) (warehouse.InsertStats, error)
	ListDetections(ctx context.Context) ([]warehouse.Detection, error)
}

// MartBuilder refreshes fct_image_detections.
type MartBuilder interface {
	RebuildDetections(ctx context.Context) (int, error)
}

// Enricher wires the detector, store and mart builder together.
type Enricher struct {
	store    Store
	detector detector.Detector
	builder  MartBuilder
	layout   lake.Layout
	csvPath  string
	workers  int
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// New builds an Enricher from configuration.
func New(cfg *config.Config, store Store, det detector.Detector, builder MartBuilder, logger *slog.Logger) *Enricher {
	return &Enricher{
		store:    store,
		detector: det,
		builder:  builder,
		layout:   lake.Layout{DataDir: cfg.Paths.DataDir},
		csvPath:  filepath.Join(cfg.EnrichedDir(), CSVFileName),
		workers:  max(cfg.Detector.Workers, 1),
		timeout:  cfg.DetectorTimeout(),
		now:      time.Now,
		logger:   logging.NewComponentLogger(logger, "enrichment"),
	}
}

// CSVPath is where the detection export is written.
func (e *Enricher) CSVPath() string {
	return e.csvPath
}

type outcome struct {
	record *detection.Record
	err    error
	path   string
}

// Run enriches every image that has no detection record yet. Per-image
// failures are counted and logged; they never fail the run.
func (e *Enricher) Run(ctx context.Context) (Summary, error) {
	messages, err := e.store.MessagesWithImages(ctx)
	if err != nil {
		return Summary{}, err
	}
	done, err := e.store.DetectedImagePaths(ctx)
	if err != nil {
		return Summary{}, err
	}
	pending := make([]warehouse.Message, 0, len(messages))
	for _, msg := range messages {
		if _, ok := done[msg.ImagePath]; ok {
			continue
		}
		pending = append(pending, msg)
	}

	summary := newSummary()
	summary.Candidates = len(messages)
	summary.AlreadyEnriched = len(messages) - len(pending)
	e.logger.Info("enrichment started",
		logging.String(logging.FieldEventType, "enrichment.started"),
		logging.Int("pending", len(pending)),
		logging.Int("already_enriched", summary.AlreadyEnriched),
		logging.Int("workers", e.workers),
	)

	records, failed, err := e.detectAll(ctx, pending)
	if err != nil {
		return Summary{}, err
	}
	summary.Failed = failed
	for _, rec := range records {
		summary.add(rec)
	}

	rows := make([]warehouse.Detection, 0, len(records))
	for _, rec := range records {
		rows = append(rows, toWarehouse(rec))
	}
	stats, err := e.store.InsertDetections(ctx, rows)
	if err != nil {
		return Summary{}, err
	}
	summary.Inserted = stats.Inserted
	summary.Skipped = stats.Skipped

	all, err := e.store.ListDetections(ctx)
	if err != nil {
		return Summary{}, err
	}
	if err := WriteCSV(e.csvPath, all); err != nil {
		return Summary{}, err
	}
	summary.OutputPath = e.csvPath

	if e.builder != nil {
		n, err := e.builder.RebuildDetections(ctx)
		if err != nil {
			return Summary{}, err
		}
		summary.DetectionFacts = n
	}
	summary.finish()

	e.logger.Info("enrichment completed",
		logging.String(logging.FieldEventType, "enrichment.completed"),
		logging.Int("processed", summary.Processed),
		logging.Int("failed", summary.Failed),
		logging.Int("inserted", summary.Inserted),
		logging.String("output", e.csvPath),
	)
	return summary, nil
}

// detectAll fans images out over the worker pool and returns the records
// sorted by (channel, message id, image path).
func (e *Enricher) detectAll(ctx context.Context, pending []warehouse.Message) ([]detection.Record, int, error) {
	results := make(chan outcome)
	var records []detection.Record
	failed := 0
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for res := range results {
			if res.err != nil {
				failed++
				e.logFailure(res)
				continue
			}
			records = append(records, *res.record)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, msg := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := e.detectOne(gctx, msg)
			select {
			case results <- res:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	waitErr := g.Wait()
	close(results)
	<-collected

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, failed, services.Wrap(services.ErrTimeout, "enriching", "detect", "stage deadline reached", err)
		}
		return nil, failed, err
	}
	if waitErr != nil {
		return nil, failed, waitErr
	}

	slices.SortFunc(records, func(a, b detection.Record) int {
		return cmp.Or(
			cmp.Compare(a.ChannelName, b.ChannelName),
			cmp.Compare(a.MessageID, b.MessageID),
			cmp.Compare(a.ImagePath, b.ImagePath),
		)
	})
	return records, failed, nil
}

func (e *Enricher) detectOne(ctx context.Context, msg warehouse.Message) outcome {
	abs := e.layout.Abs(msg.ImagePath)
	if _, err := os.Stat(abs); err != nil {
		return outcome{path: msg.ImagePath, err: services.Wrap(services.ErrValidation, "enriching", "open image", abs, err)}
	}
	detectCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		detectCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	dets, err := e.detector.Detect(detectCtx, abs)
	if err != nil {
		if errors.Is(detectCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = services.Wrap(services.ErrTimeout, "enriching", "detect", fmt.Sprintf("%s exceeded %s", msg.ImagePath, e.timeout), err)
		}
		return outcome{path: msg.ImagePath, err: err}
	}
	rec := detection.BuildRecord(detection.ImageRef{
		MessageID:   msg.MessageID,
		ChannelName: msg.ChannelName,
		ImagePath:   msg.ImagePath,
	}, dets, e.now())
	return outcome{path: msg.ImagePath, record: &rec}
}

func (e *Enricher) logFailure(res outcome) {
	logging.WarnWithContext(e.logger, "image skipped", "enrichment.image_failed",
		logging.String("image_path", res.path),
		logging.Error(res.err),
		logging.ErrorKind(res.err),
		logging.ErrorHint(res.err),
		logging.Impact("image has no detection record until the next enrichment"),
	)
}

func toWarehouse(rec detection.Record) warehouse.Detection {
	return warehouse.Detection{
		MessageID:       rec.MessageID,
		ChannelName:     rec.ChannelName,
		ImagePath:       rec.ImagePath,
		DetectedClass:   rec.DetectedClass,
		ConfidenceScore: rec.ConfidenceScore,
		ImageCategory:   string(rec.ImageCategory),
		DetectionCount:  rec.DetectionCount,
		DetectedAt:      rec.DetectedAt,
	}
}
