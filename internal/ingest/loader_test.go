package ingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"medwarehouse/internal/ingest"
	"medwarehouse/internal/lake"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
	"medwarehouse/internal/testsupport"
	"medwarehouse/internal/warehouse"
)

func lakeMessage(channel string, id int64, text string) lake.Message {
	return lake.Message{
		MessageID:   id,
		ChannelName: channel,
		MessageDate: lake.NewTimestamp(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)),
		MessageText: text,
		Views:       10 * int(id),
	}
}

func TestLoadPartitionIsIdempotentAndIsolatesBadFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	const partition = "2024-03-01"

	image := "raw/images/chemed/2.jpg"
	withImage := lakeMessage("chemed", 2, "Vitamin C")
	withImage.HasMedia = true
	withImage.ImagePath = &image
	testsupport.WriteLakeFile(t, cfg, partition, "chemed", []lake.Message{lakeMessage("chemed", 1, "Paracetamol"), withImage})
	testsupport.WriteLakeFile(t, cfg, partition, "tikvahpharma", []lake.Message{lakeMessage("tikvahpharma", 1, "Amoxicillin")})
	testsupport.WriteRawLakeFile(t, cfg, partition, "broken", []byte(`[{"message_id": 1,`))
	// has_media without image_path breaks the record invariant.
	testsupport.WriteRawLakeFile(t, cfg, partition, "invalid", []byte(`[{"message_id": 5, "channel_name": "invalid", "message_date": "2024-03-01T00:00:00", "has_media": true, "image_path": null}]`))

	loader := ingest.NewLoader(cfg, store, logging.NewNop()).WithBackoff(0)
	report, err := loader.LoadPartition(ctx, partition)
	if err != nil {
		t.Fatalf("LoadPartition: %v", err)
	}
	if report.Inserted != 3 || report.Skipped != 0 || report.Failed != 2 {
		t.Fatalf("unexpected first report %+v", report)
	}
	if len(report.Files) != 4 {
		t.Fatalf("expected 4 file reports, got %d", len(report.Files))
	}
	// Sorted by file name: broken, chemed, invalid, tikvahpharma.
	wantOrder := []string{"broken", "chemed", "invalid", "tikvahpharma"}
	for i, f := range report.Files {
		if f.Channel != wantOrder[i] {
			t.Fatalf("file %d = %s, want %s", i, f.Channel, wantOrder[i])
		}
	}
	if report.Files[0].Status != ingest.FileFailed || report.Files[0].Attempts != 1 {
		t.Fatalf("malformed file should fail without retry: %+v", report.Files[0])
	}
	if got := report.FailedFiles(); len(got) != 2 || got[0] != "broken.json" || got[1] != "invalid.json" {
		t.Fatalf("unexpected failed files %v", got)
	}

	again, err := loader.LoadPartition(ctx, partition)
	if err != nil {
		t.Fatalf("second LoadPartition: %v", err)
	}
	if again.Inserted != 0 || again.Skipped != 3 {
		t.Fatalf("reload should skip every row, got %+v", again)
	}
	count, _ := store.CountMessages(ctx)
	if count != 3 {
		t.Fatalf("expected 3 raw messages, got %d", count)
	}
}

func TestLoadPartitionErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	loader := ingest.NewLoader(cfg, store, logging.NewNop())

	if _, err := loader.LoadPartition(context.Background(), "03/01/2024"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad partition, got %v", err)
	}
	if _, err := loader.LoadPartition(context.Background(), "2024-01-01"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for missing partition, got %v", err)
	}
}

type flakyStore struct {
	failures int
	calls    int
}

func (s *flakyStore) InsertMessages(_ context.Context, messages []warehouse.Message) (warehouse.InsertStats, error) {
	s.calls++
	if s.calls <= s.failures {
		return warehouse.InsertStats{}, services.Wrap(services.ErrTransient, "warehouse", "insert messages", "locked", nil)
	}
	return warehouse.InsertStats{Inserted: len(messages)}, nil
}

func TestLoadPartitionRetriesTransientFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.LoadRetryAttempts = 3
	testsupport.WriteLakeFile(t, cfg, "2024-03-01", "chemed", []lake.Message{lakeMessage("chemed", 1, "x")})

	store := &flakyStore{failures: 2}
	report, err := ingest.NewLoader(cfg, store, logging.NewNop()).WithBackoff(time.Millisecond).LoadPartition(context.Background(), "2024-03-01")
	if err != nil {
		t.Fatalf("LoadPartition: %v", err)
	}
	if report.Inserted != 1 || report.Files[0].Attempts != 3 || report.Files[0].Status != ingest.FileLoaded {
		t.Fatalf("unexpected report %+v", report)
	}

	exhausted := &flakyStore{failures: 5}
	report, _ = ingest.NewLoader(cfg, exhausted, logging.NewNop()).WithBackoff(0).LoadPartition(context.Background(), "2024-03-01")
	if report.Failed != 1 || exhausted.calls != 3 {
		t.Fatalf("expected failure after 3 attempts, got report=%+v calls=%d", report, exhausted.calls)
	}
}
