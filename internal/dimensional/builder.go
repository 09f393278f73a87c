package dimensional

import (
	"context"
	"log/slog"

	"medwarehouse/internal/config"
	"medwarehouse/internal/lockfile"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/warehouse"
)

// Stats summarizes one rebuild.
type Stats struct {
	Channels       int `json:"channels"`
	Dates          int `json:"dates"`
	Facts          int `json:"facts"`
	DroppedFacts   int `json:"dropped_facts"`
	DetectionFacts int `json:"detection_facts"`
}

// Builder rebuilds the marts from the raw tables.
type Builder struct {
	store  *warehouse.Store
	lock   *lockfile.Lock
	logger *slog.Logger
}

// NewBuilder wires a builder to the store and the shared rebuild lock.
func NewBuilder(cfg *config.Config, store *warehouse.Store, logger *slog.Logger) *Builder {
	return &Builder{
		store:  store,
		lock:   lockfile.New(cfg.RebuildLockPath()),
		logger: logging.NewComponentLogger(logger, "dimensional"),
	}
}

// Rebuild replaces dim_channels, dim_dates and fct_messages. When the
// detection mart already exists it is recomputed against the new channel keys
// and replaced in the same transaction, so readers never join detections to
// shifted keys.
func (b *Builder) Rebuild(ctx context.Context) (Stats, error) {
	if err := b.lock.Exclusive(ctx); err != nil {
		return Stats{}, err
	}
	defer b.unlock()

	messages, err := b.store.ListMessages(ctx)
	if err != nil {
		return Stats{}, err
	}
	channels := BuildChannels(messages)
	dates := BuildDates(messages)
	facts, dropped := BuildFacts(messages, channels)
	if dropped > 0 {
		logging.WarnWithContext(b.logger, "messages dropped from fact table", "dimensional.facts_dropped",
			logging.Int("dropped", dropped),
			logging.Impact("dropped messages are missing from reports"),
			logging.Hint("check raw_messages for rows without a channel"),
		)
	}
	marts := warehouse.Marts{Channels: channels, Dates: dates, Facts: facts}

	hasMart, err := b.store.HasDetectionMart(ctx)
	if err != nil {
		return Stats{}, err
	}
	if hasMart {
		marts.WithDetections = true
		marts.Detections, err = b.detectionFacts(ctx, channels)
		if err != nil {
			return Stats{}, err
		}
	}

	if err := b.store.ReplaceMarts(ctx, marts); err != nil {
		return Stats{}, err
	}
	stats := Stats{
		Channels:       len(channels),
		Dates:          len(dates),
		Facts:          len(facts),
		DroppedFacts:   dropped,
		DetectionFacts: len(marts.Detections),
	}

	b.logger.Info("marts rebuilt",
		logging.String(logging.FieldEventType, "dimensional.rebuilt"),
		logging.Int("channels", stats.Channels),
		logging.Int("dates", stats.Dates),
		logging.Int("facts", stats.Facts),
		logging.Int("detection_facts", stats.DetectionFacts),
	)
	return stats, nil
}

// RebuildDetections replaces fct_image_detections only, creating it on first
// use. It joins against the current dim_channels.
func (b *Builder) RebuildDetections(ctx context.Context) (int, error) {
	if err := b.lock.Exclusive(ctx); err != nil {
		return 0, err
	}
	defer b.unlock()

	channels, err := b.store.ListChannels(ctx)
	if err != nil {
		return 0, err
	}
	facts, err := b.detectionFacts(ctx, channels)
	if err != nil {
		return 0, err
	}
	if err := b.store.ReplaceDetectionMart(ctx, facts); err != nil {
		return 0, err
	}
	n := len(facts)
	b.logger.Info("detection mart rebuilt",
		logging.String(logging.FieldEventType, "dimensional.detections_rebuilt"),
		logging.Int("detection_facts", n),
	)
	return n, nil
}

func (b *Builder) detectionFacts(ctx context.Context, channels []warehouse.ChannelRow) ([]warehouse.DetectionFact, error) {
	detections, err := b.store.ListDetections(ctx)
	if err != nil {
		return nil, err
	}
	facts, dropped := BuildDetectionFacts(detections, channels)
	if dropped > 0 {
		logging.WarnWithContext(b.logger, "detections dropped from detection mart", "dimensional.detections_dropped",
			logging.Int("dropped", dropped),
			logging.Impact("visual content report undercounts these images"),
			logging.Hint("rebuild the message marts before enriching"),
		)
	}
	return facts, nil
}

func (b *Builder) unlock() {
	if err := b.lock.Unlock(); err != nil {
		logging.WarnWithContext(b.logger, "failed to release rebuild lock", "dimensional.unlock_failed",
			logging.Error(err),
			logging.Impact("later loads may block until the process exits"),
		)
	}
}
