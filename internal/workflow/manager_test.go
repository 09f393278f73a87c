package workflow_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"medwarehouse/internal/config"
	"medwarehouse/internal/detector"
	"medwarehouse/internal/dimensional"
	"medwarehouse/internal/enrichment"
	"medwarehouse/internal/ingest"
	"medwarehouse/internal/lockfile"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/scraper"
	"medwarehouse/internal/services"
	"medwarehouse/internal/stage"
	"medwarehouse/internal/testsupport"
	"medwarehouse/internal/transform"
	"medwarehouse/internal/warehouse"
	"medwarehouse/internal/workflow"
)

const partition = "2024-03-01"

func TestRunExecutesEveryStageEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithChannels("chemed", "lobelia4cosmetics"),
		testsupport.WithDetectorScript(`[{"class_name": "bottle", "confidence": 0.91}]`),
	)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	ctx := context.Background()

	clock := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	det, err := detector.New(cfg)
	if err != nil {
		t.Fatalf("detector.New: %v", err)
	}
	builder := dimensional.NewBuilder(cfg, store, logger)
	notifier := &stubNotifier{}
	mgr := workflow.NewManagerWithNotifier(cfg, store, logger, notifier)
	mgr.ConfigureStages(workflow.StageSet{
		Scraper:     scraper.NewStage(cfg, scraper.NewSynthetic(cfg.Scraper.Seed).WithClock(clock), logger),
		Loader:      ingest.NewStage(cfg, store, logger),
		Transformer: transform.NewStage(cfg, builder, logger),
		Enricher:    enrichment.NewStage(enrichment.New(cfg, store, det, builder, logger)),
	})

	report, err := mgr.Run(ctx, workflow.RunOptions{Partition: partition})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Status != warehouse.RunDone || len(report.Stages) != 4 {
		t.Fatalf("unexpected report %+v", report)
	}
	for _, res := range report.Stages {
		if res.Status != stage.StatusCompleted {
			t.Fatalf("stage %s ended %s: %s", res.Stage, res.Status, res.Message)
		}
	}
	scraped, _ := report.Stage(workflow.StageScraping)
	loaded, _ := report.Stage(workflow.StageLoading)
	if loaded.Counts["inserted"] != scraped.Counts["messages"] || loaded.Counts["inserted"] == 0 {
		t.Fatalf("loaded %d of %d scraped messages", loaded.Counts["inserted"], scraped.Counts["messages"])
	}
	enriched, _ := report.Stage(workflow.StageEnriching)
	if enriched.Counts["processed"] != scraped.Counts["images"] {
		t.Fatalf("enriched %d of %d images", enriched.Counts["processed"], scraped.Counts["images"])
	}

	facts, err := store.ListFacts(ctx)
	if err != nil {
		t.Fatalf("ListFacts: %v", err)
	}
	if len(facts) != loaded.Counts["inserted"] {
		t.Fatalf("expected %d facts, got %d", loaded.Counts["inserted"], len(facts))
	}
	if _, err := os.Stat(report.LogPath); err != nil {
		t.Fatalf("run log missing: %v", err)
	}

	run, err := store.GetRun(ctx, report.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != warehouse.RunDone || run.FinishedAt == nil {
		t.Fatalf("run not finished: %+v", run)
	}
	persisted, err := workflow.DecodeStageResults(*run)
	if err != nil || len(persisted) != 4 {
		t.Fatalf("persisted stage results %v err=%v", persisted, err)
	}
	if len(notifier.events) != 2 || notifier.events[0] != workflow.EventStarted || notifier.events[1] != workflow.EventCompleted {
		t.Fatalf("unexpected notifications %v", notifier.events)
	}

	// A second run over the same partition is idempotent.
	again, err := mgr.Run(ctx, workflow.RunOptions{Partition: partition, Stages: []string{workflow.StageLoading}})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	reloaded, _ := again.Stage(workflow.StageLoading)
	if reloaded.Counts["inserted"] != 0 || reloaded.Counts["skipped"] != loaded.Counts["inserted"] {
		t.Fatalf("reload should skip everything, got %v", reloaded.Counts)
	}
}

func fakeManager(t *testing.T, notifier *stubNotifier) (*workflow.Manager, *config.Config, *warehouse.Store, map[string]*fakeStage) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.LoadTimeout = 1
	store := testsupport.MustOpenStore(t, cfg)
	stages := map[string]*fakeStage{
		workflow.StageScraping:     {name: workflow.StageScraping, result: stage.Result{Message: "scraped", Counts: map[string]int{"messages": 3}}},
		workflow.StageLoading:      {name: workflow.StageLoading},
		workflow.StageTransforming: {name: workflow.StageTransforming},
		workflow.StageEnriching:    {name: workflow.StageEnriching},
	}
	mgr := workflow.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	mgr.ConfigureStages(workflow.StageSet{
		Scraper:     stages[workflow.StageScraping],
		Loader:      stages[workflow.StageLoading],
		Transformer: stages[workflow.StageTransforming],
		Enricher:    stages[workflow.StageEnriching],
	})
	return mgr, cfg, store, stages
}

func TestRunFailureSkipsRemainingStages(t *testing.T) {
	notifier := &stubNotifier{}
	mgr, _, store, stages := fakeManager(t, notifier)
	stages[workflow.StageTransforming].result = stage.Result{Output: "Completed with 1 error"}
	stages[workflow.StageTransforming].err = services.Wrap(services.ErrExternalTool, "transforming", "dbt test", "dbt test exited with status 1", nil)

	report, err := mgr.Run(context.Background(), workflow.RunOptions{Partition: partition})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if report == nil || report.Status != warehouse.RunFailed {
		t.Fatalf("unexpected report %+v", report)
	}
	want := []stage.Status{stage.StatusCompleted, stage.StatusCompleted, stage.StatusFailed, stage.StatusSkipped}
	for i, res := range report.Stages {
		if res.Status != want[i] {
			t.Fatalf("stage %d (%s) = %s, want %s", i, res.Stage, res.Status, want[i])
		}
	}
	failed := report.Stages[2]
	if failed.Output != "Completed with 1 error" || failed.Message != "dbt test exited with status 1" {
		t.Fatalf("failed stage lost its diagnostics: %+v", failed)
	}
	if stages[workflow.StageEnriching].executed != 0 {
		t.Fatal("stages after a failure must not run")
	}
	if report.Error == nil || report.Error.Kind != services.KindExternalTool {
		t.Fatalf("unexpected error details %+v", report.Error)
	}

	run, err := store.GetRun(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != warehouse.RunFailed || run.ErrorKind != "external_tool" || run.CurrentStage != workflow.StageTransforming {
		t.Fatalf("unexpected persisted run %+v", run)
	}
	event, payload := notifier.last()
	if event != workflow.EventFailed || payload["stage"] != workflow.StageTransforming {
		t.Fatalf("expected run_failed for transforming, got %s %v", event, payload)
	}
}

func TestRunPassesPreviousResult(t *testing.T) {
	mgr, _, _, stages := fakeManager(t, &stubNotifier{})
	if _, err := mgr.Run(context.Background(), workflow.RunOptions{Partition: partition}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	scraping := stages[workflow.StageScraping]
	loading := stages[workflow.StageLoading]
	if scraping.inputs[0].Previous != nil {
		t.Fatal("first stage should have no previous result")
	}
	prev := loading.inputs[0].Previous
	if prev == nil || prev.Stage != workflow.StageScraping || prev.Counts["messages"] != 3 {
		t.Fatalf("unexpected previous result %+v", prev)
	}
	if loading.inputs[0].Partition != partition || loading.inputs[0].RunID == "" {
		t.Fatalf("unexpected input %+v", loading.inputs[0])
	}
}

func TestRunMapsStageDeadlineToTimeout(t *testing.T) {
	mgr, _, _, stages := fakeManager(t, &stubNotifier{})
	stages[workflow.StageLoading].block = true

	report, err := mgr.Run(context.Background(), workflow.RunOptions{Partition: partition})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if res, _ := report.Stage(workflow.StageLoading); res.Status != stage.StatusFailed {
		t.Fatalf("loading should fail on its deadline, got %+v", res)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	mgr, cfg, _, stages := fakeManager(t, &stubNotifier{})
	other := lockfile.New(cfg.PipelineLockPath())
	locked, err := other.TryExclusive()
	if err != nil || !locked {
		t.Fatalf("could not take pipeline lock: locked=%v err=%v", locked, err)
	}
	defer other.Unlock()

	_, err = mgr.Run(context.Background(), workflow.RunOptions{Partition: partition})
	if !errors.Is(err, workflow.ErrPipelineBusy) {
		t.Fatalf("expected ErrPipelineBusy, got %v", err)
	}
	if stages[workflow.StageScraping].executed != 0 {
		t.Fatal("no stage should run while the lock is held")
	}
	if !mgr.Status(context.Background()).Busy {
		t.Fatal("status should report the held lock as busy")
	}
	if n, err := mgr.ReclaimInterrupted(context.Background()); err != nil || n != 0 {
		t.Fatalf("reclaim must not run while another process holds the lock: n=%d err=%v", n, err)
	}
}

func TestRunSubsetAndUnknownStage(t *testing.T) {
	mgr, _, _, stages := fakeManager(t, &stubNotifier{})
	report, err := mgr.Run(context.Background(), workflow.RunOptions{Partition: partition, Stages: []string{workflow.StageEnriching, workflow.StageLoading}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Stages) != 2 || report.Stages[0].Stage != workflow.StageLoading || report.Stages[1].Stage != workflow.StageEnriching {
		t.Fatalf("subset should keep pipeline order, got %+v", report.Stages)
	}
	if stages[workflow.StageScraping].executed != 0 || stages[workflow.StageTransforming].executed != 0 {
		t.Fatal("unselected stages ran")
	}

	if _, err := mgr.Run(context.Background(), workflow.RunOptions{Stages: []string{"publishing"}}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown stage, got %v", err)
	}
	if _, err := mgr.Run(context.Background(), workflow.RunOptions{Partition: "yesterday"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad partition, got %v", err)
	}
}

func TestReclaimInterruptedFailsStaleRuns(t *testing.T) {
	mgr, _, store, _ := fakeManager(t, &stubNotifier{})
	ctx := context.Background()
	stale := &warehouse.Run{ID: "stale", Partition: partition, Status: warehouse.RunLoading, CurrentStage: workflow.StageLoading}
	if err := store.CreateRun(ctx, stale); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	done := &warehouse.Run{ID: "done", Partition: partition, Status: warehouse.RunDone}
	if err := store.CreateRun(ctx, done); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	n, err := mgr.ReclaimInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ReclaimInterrupted = %d, %v", n, err)
	}
	got, err := store.GetRun(ctx, "stale")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != warehouse.RunFailed || got.ErrorMessage != workflow.InterruptedMessage {
		t.Fatalf("unexpected reclaimed run %+v", got)
	}
	if kept, _ := store.GetRun(ctx, "done"); kept.Status != warehouse.RunDone {
		t.Fatalf("finished run should be untouched, got %s", kept.Status)
	}
}

func TestStatusReportsStageHealth(t *testing.T) {
	mgr, _, _, stages := fakeManager(t, &stubNotifier{})
	stages[workflow.StageEnriching].err = errors.New("detector missing")
	if _, err := mgr.Run(context.Background(), workflow.RunOptions{Partition: partition, Stages: []string{workflow.StageScraping}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	summary := mgr.Status(context.Background())
	if summary.Busy || summary.LastRun == nil || summary.LastRun.Status != warehouse.RunDone {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary.StageHealth) != 4 || summary.StageHealth[3].Ready {
		t.Fatalf("unexpected stage health %+v", summary.StageHealth)
	}
}
