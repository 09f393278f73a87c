package main

import (
	"context"
	"log/slog"

	"medwarehouse/internal/config"
	"medwarehouse/internal/detector"
	"medwarehouse/internal/dimensional"
	"medwarehouse/internal/enrichment"
	"medwarehouse/internal/ingest"
	"medwarehouse/internal/notifications"
	"medwarehouse/internal/reporting"
	"medwarehouse/internal/scraper"
	"medwarehouse/internal/transform"
	"medwarehouse/internal/warehouse"
	"medwarehouse/internal/workflow"
)

// pipeline bundles a configured manager with the notifier it owns.
type pipeline struct {
	manager  *workflow.Manager
	notifier notifications.Service
}

func (p *pipeline) Close() error {
	if p == nil || p.notifier == nil {
		return nil
	}
	return p.notifier.Close()
}

func (c *commandContext) buildPipeline(ctx context.Context) (*pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}
	logger := c.ensureLogger()
	notifier := notifications.NewService(cfg)
	mgr := workflow.NewManagerWithNotifier(cfg, store, logger, notifier)
	if err := registerStages(mgr, cfg, store, logger); err != nil {
		_ = notifier.Close()
		return nil, err
	}
	return &pipeline{manager: mgr, notifier: notifier}, nil
}

// registerStages builds every stage. A broken detector or scraper source
// configuration fails here, before any run record is written.
func registerStages(mgr *workflow.Manager, cfg *config.Config, store *warehouse.Store, logger *slog.Logger) error {
	source, err := scraper.NewSource(cfg)
	if err != nil {
		return err
	}
	det, err := detector.New(cfg)
	if err != nil {
		return err
	}
	builder := dimensional.NewBuilder(cfg, store, logger)
	enricher := enrichment.New(cfg, store, det, builder, logger)

	mgr.ConfigureStages(workflow.StageSet{
		Scraper:     scraper.NewStage(cfg, source, logger),
		Loader:      ingest.NewStage(cfg, store, logger),
		Transformer: transform.NewStage(cfg, builder, logger),
		Enricher:    enrichment.NewStage(enricher),
	})
	return nil
}

func (c *commandContext) reportingService(ctx context.Context) (*reporting.Service, *warehouse.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := c.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc, err := reporting.NewService(ctx, cfg, store, c.ensureLogger())
	if err != nil {
		return nil, nil, err
	}
	return svc, store, nil
}
