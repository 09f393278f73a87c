package stageexec_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
	"medwarehouse/internal/stage"
	"medwarehouse/internal/stageexec"
	"medwarehouse/internal/warehouse"
)

type memoryStore struct {
	updates []warehouse.RunStatus
}

func (m *memoryStore) UpdateRun(_ context.Context, run *warehouse.Run) error {
	m.updates = append(m.updates, run.Status)
	return nil
}

type fakeHandler struct {
	prepareErr error
	result     stage.Result
	err        error
	block      bool
	seen       stage.Input
}

func (h *fakeHandler) Prepare(context.Context, stage.Input) error { return h.prepareErr }

func (h *fakeHandler) Execute(ctx context.Context, in stage.Input) (stage.Result, error) {
	h.seen = in
	if h.block {
		<-ctx.Done()
		return stage.Result{Output: "partial output"}, ctx.Err()
	}
	return h.result, h.err
}

func (h *fakeHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy("fake") }

func options(store *memoryStore, handler *fakeHandler) stageexec.Options {
	return stageexec.Options{
		Logger:     logging.NewNop(),
		Store:      store,
		Handler:    handler,
		StageName:  "loading",
		Processing: warehouse.RunLoading,
		Run:        &warehouse.Run{ID: "run-1", Status: warehouse.RunScraping},
		Input:      stage.Input{Partition: "2024-03-01"},
	}
}

func TestRunPersistsTransitionAndCompletes(t *testing.T) {
	store := &memoryStore{}
	handler := &fakeHandler{result: stage.Result{Counts: map[string]int{"inserted": 3}}}
	opts := options(store, handler)

	result, err := stageexec.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.updates) != 1 || store.updates[0] != warehouse.RunLoading {
		t.Fatalf("expected processing transition to be persisted, got %v", store.updates)
	}
	if opts.Run.CurrentStage != "loading" {
		t.Fatalf("current stage not recorded: %q", opts.Run.CurrentStage)
	}
	if result.Stage != "loading" || result.Status != stage.StatusCompleted || result.Counts["inserted"] != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
	if handler.seen.RunID != "run-1" || handler.seen.Partition != "2024-03-01" {
		t.Fatalf("unexpected input %+v", handler.seen)
	}
}

func TestRunKeepsPartialStatus(t *testing.T) {
	handler := &fakeHandler{result: stage.Result{Status: stage.StatusPartial, Message: "1 file failed"}}
	result, err := stageexec.Run(context.Background(), options(&memoryStore{}, handler))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != stage.StatusPartial {
		t.Fatalf("expected partial status, got %q", result.Status)
	}
}

func TestRunMapsDeadlineToTimeout(t *testing.T) {
	handler := &fakeHandler{block: true}
	opts := options(&memoryStore{}, handler)
	opts.Timeout = 20 * time.Millisecond

	result, err := stageexec.Run(context.Background(), opts)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if result.Status != stage.StatusFailed || result.Output != "partial output" {
		t.Fatalf("unexpected result %+v", result)
	}
	if services.KindOf(err) != services.KindTimeout {
		t.Fatalf("unexpected kind %q", services.KindOf(err))
	}
}

func TestRunReportsPrepareFailure(t *testing.T) {
	handler := &fakeHandler{prepareErr: services.Wrap(services.ErrValidation, "loading", "partition", "bad partition", nil)}
	result, err := stageexec.Run(context.Background(), options(&memoryStore{}, handler))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if result.Status != stage.StatusFailed || result.Message != "bad partition" {
		t.Fatalf("unexpected result %+v", result)
	}
	if handler.seen.RunID != "" {
		t.Fatal("Execute should not run after Prepare fails")
	}
}
