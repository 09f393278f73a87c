package warehouse_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"medwarehouse/internal/services"
	"medwarehouse/internal/testsupport"
	"medwarehouse/internal/warehouse"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, table := range []string{"raw_messages", "raw_image_detections", "dim_channels", "dim_dates", "fct_messages", "pipeline_runs"} {
		ok, err := store.TableExists(ctx, table)
		if err != nil {
			t.Fatalf("TableExists(%s): %v", table, err)
		}
		if !ok {
			t.Fatalf("expected table %s after open", table)
		}
	}
	if ok, _ := store.HasDetectionMart(ctx); ok {
		t.Fatal("detection mart should not exist before enrichment")
	}
	version, dirty, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != 3 || dirty {
		t.Fatalf("unexpected schema version %d dirty=%v", version, dirty)
	}

	// Reopening an up-to-date database is a no-op.
	store.Close()
	again := testsupport.MustOpenStore(t, cfg)
	if err := again.Ping(ctx); err != nil {
		t.Fatalf("Ping after reopen: %v", err)
	}
}

func TestInsertMessagesSkipsExistingKeys(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewMessage("chemed", 1, "2024-03-01", "Paracetamol 500mg", 120)
	second := testsupport.NewMessage("chemed", 2, "2024-03-01", "Vitamin C", 80)
	second.HasMedia = true
	second.ImagePath = "raw/images/chemed/2.jpg"
	// Same id in another channel is a different message.
	other := testsupport.NewMessage("tikvahpharma", 1, "2024-03-02", "Amoxicillin", 300)

	stats := testsupport.MustInsertMessages(t, store, first, second, other)
	if stats.Inserted != 3 || stats.Skipped != 0 {
		t.Fatalf("unexpected first stats %+v", stats)
	}

	changed := first
	changed.MessageText = "overwritten"
	stats = testsupport.MustInsertMessages(t, store, changed, second)
	if stats.Inserted != 0 || stats.Skipped != 2 {
		t.Fatalf("unexpected second stats %+v", stats)
	}

	messages, err := store.ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].MessageText != "Paracetamol 500mg" {
		t.Fatalf("existing row was overwritten: %q", messages[0].MessageText)
	}
	if !messages[1].HasMedia || messages[1].ImagePath != "raw/images/chemed/2.jpg" {
		t.Fatalf("media fields not round-tripped: %+v", messages[1])
	}
	if !messages[0].MessageDate.Equal(first.MessageDate) {
		t.Fatalf("message date changed: %s vs %s", messages[0].MessageDate, first.MessageDate)
	}

	withImages, err := store.MessagesWithImages(ctx)
	if err != nil {
		t.Fatalf("MessagesWithImages: %v", err)
	}
	if len(withImages) != 1 || withImages[0].MessageID != 2 || withImages[0].ChannelName != "chemed" {
		t.Fatalf("unexpected image messages %+v", withImages)
	}
}

func sampleMarts() warehouse.Marts {
	return warehouse.Marts{
		Channels: []warehouse.ChannelRow{
			{ChannelKey: 1, ChannelName: "chemed", ChannelType: "Medical", TotalPosts: 2, AvgViews: 150},
			{ChannelKey: 2, ChannelName: "lobelia4cosmetics", ChannelType: "Cosmetics", TotalPosts: 1, AvgViews: 40},
		},
		Dates: []warehouse.DateRow{
			{DateKey: 20240301, FullDate: "2024-03-01", Year: 2024, Quarter: 1, Month: 3, MonthName: "March", DayOfMonth: 1, DayOfWeek: 5, DayName: "Friday", WeekOfYear: 9},
			{DateKey: 20240302, FullDate: "2024-03-02", Year: 2024, Quarter: 1, Month: 3, MonthName: "March", DayOfMonth: 2, DayOfWeek: 6, DayName: "Saturday", WeekOfYear: 9, IsWeekend: true},
		},
		Facts: []warehouse.MessageFact{
			{MessageID: 1, ChannelKey: 1, DateKey: 20240301, MessageText: "Paracetamol tablet 50% off", MessageLength: 26, ViewCount: 100},
			{MessageID: 2, ChannelKey: 1, DateKey: 20240302, MessageText: "Vitamin syrup", MessageLength: 13, ViewCount: 200, HasImage: true},
			{MessageID: 1, ChannelKey: 2, DateKey: 20240302, MessageText: "Face CREAM", MessageLength: 10, ViewCount: 40, HasImage: true},
		},
	}
}

func TestReplaceMartsIsWholesale(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.ReplaceMarts(ctx, sampleMarts()); err != nil {
		t.Fatalf("ReplaceMarts: %v", err)
	}
	if err := store.ReplaceMarts(ctx, sampleMarts()); err != nil {
		t.Fatalf("second ReplaceMarts: %v", err)
	}
	channels, _ := store.ListChannels(ctx)
	dates, _ := store.ListDates(ctx)
	facts, _ := store.ListFacts(ctx)
	if len(channels) != 2 || len(dates) != 2 || len(facts) != 3 {
		t.Fatalf("unexpected mart sizes %d/%d/%d", len(channels), len(dates), len(facts))
	}
	if !dates[1].IsWeekend || dates[0].IsWeekend {
		t.Fatalf("weekend flags not preserved: %+v", dates)
	}

	// A fact pointing at a missing channel violates the foreign key and
	// must leave the previous marts intact.
	broken := sampleMarts()
	broken.Channels = broken.Channels[:1]
	if err := store.ReplaceMarts(ctx, broken); err == nil {
		t.Fatal("expected foreign key failure")
	}
	channels, _ = store.ListChannels(ctx)
	if len(channels) != 2 {
		t.Fatalf("failed replace should roll back, got %d channels", len(channels))
	}
}

func TestReplaceDetectionMartCreatesTable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.ListDetectionFacts(ctx); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found before first build, got %v", err)
	}
	facts := []warehouse.DetectionFact{
		{MessageID: 2, ChannelKey: 1, ImagePath: "raw/images/chemed/2.jpg", DetectedClass: "person", ConfidenceScore: 0.8, ImageCategory: "promotional", DetectionCount: 3, DetectedAt: time.Now()},
	}
	if err := store.ReplaceDetectionMart(ctx, facts); err != nil {
		t.Fatalf("ReplaceDetectionMart: %v", err)
	}
	if err := store.ReplaceDetectionMart(ctx, facts); err != nil {
		t.Fatalf("second ReplaceDetectionMart: %v", err)
	}
	got, err := store.ListDetectionFacts(ctx)
	if err != nil {
		t.Fatalf("ListDetectionFacts: %v", err)
	}
	if len(got) != 1 || got[0].ImageCategory != "promotional" {
		t.Fatalf("unexpected detection facts %+v", got)
	}
}

func TestReplaceMartsSwapsDetectionMartInSameTransaction(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fact := warehouse.DetectionFact{MessageID: 1, ChannelKey: 2, ImagePath: "raw/images/lobelia4cosmetics/1.jpg",
		DetectedClass: "bottle", ConfidenceScore: 0.6, ImageCategory: "product_display", DetectionCount: 1, DetectedAt: time.Now()}
	marts := sampleMarts()
	marts.WithDetections = true
	marts.Detections = []warehouse.DetectionFact{fact}
	if err := store.ReplaceMarts(ctx, marts); err != nil {
		t.Fatalf("ReplaceMarts: %v", err)
	}
	if ok, _ := store.HasDetectionMart(ctx); !ok {
		t.Fatal("expected detection mart to be created")
	}

	// A duplicate detection key fails the detection half; the message marts
	// written earlier in the same call must not survive either.
	shifted := sampleMarts()
	shifted.Channels = append([]warehouse.ChannelRow{{ChannelKey: 3, ChannelName: "addispharma", ChannelType: "Pharmaceutical", TotalPosts: 0}}, shifted.Channels...)
	shifted.WithDetections = true
	shifted.Detections = []warehouse.DetectionFact{fact, fact}
	if err := store.ReplaceMarts(ctx, shifted); err == nil {
		t.Fatal("expected duplicate detection key to fail")
	}
	channels, _ := store.ListChannels(ctx)
	if len(channels) != 2 {
		t.Fatalf("failed replace should keep the previous channels, got %+v", channels)
	}
	got, err := store.ListDetectionFacts(ctx)
	if err != nil || len(got) != 1 || got[0].ChannelKey != 2 {
		t.Fatalf("failed replace should keep the previous detection facts, got %+v (%v)", got, err)
	}

	// Without WithDetections the detection mart is left alone.
	if err := store.ReplaceMarts(ctx, sampleMarts()); err != nil {
		t.Fatalf("ReplaceMarts without detections: %v", err)
	}
	if got, _ := store.ListDetectionFacts(ctx); len(got) != 1 {
		t.Fatalf("detection mart should be untouched, got %+v", got)
	}
}

func TestReportQueries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	if err := store.ReplaceMarts(ctx, sampleMarts()); err != nil {
		t.Fatalf("ReplaceMarts: %v", err)
	}

	mentions, err := store.TermMentions(ctx, "CREAM")
	if err != nil {
		t.Fatalf("TermMentions: %v", err)
	}
	if len(mentions) != 1 || mentions[0].ChannelName != "lobelia4cosmetics" || mentions[0].Mentions != 1 {
		t.Fatalf("unexpected mentions %+v", mentions)
	}

	summaries, err := store.ChannelSummaries(ctx)
	if err != nil {
		t.Fatalf("ChannelSummaries: %v", err)
	}
	if len(summaries) != 2 || summaries[0].ChannelName != "chemed" || summaries[0].MessagesWithImages != 1 || summaries[0].AvgViews != 150 {
		t.Fatalf("unexpected summaries %+v", summaries)
	}

	activity, err := store.ChannelActivity(ctx, "chemed", "2024-03-02")
	if err != nil {
		t.Fatalf("ChannelActivity: %v", err)
	}
	if len(activity) != 1 || activity[0].Date != "2024-03-02" || activity[0].AvgViews != 200 {
		t.Fatalf("unexpected activity %+v", activity)
	}

	hits, err := store.SearchMessages(ctx, "vitamin", "", 10)
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(hits) != 1 || hits[0].MessageDate != "2024-03-02" || !hits[0].HasImage {
		t.Fatalf("unexpected hits %+v", hits)
	}
	// LIKE wildcards in the query are literal.
	if hits, _ := store.SearchMessages(ctx, "50%", "", 10); len(hits) != 1 {
		t.Fatalf("expected literal percent match, got %+v", hits)
	}
	if hits, _ := store.SearchMessages(ctx, "_", "", 10); len(hits) != 0 {
		t.Fatalf("underscore should not act as a wildcard, got %+v", hits)
	}
	if hits, _ := store.SearchMessages(ctx, "a", "chemed", 1); len(hits) != 1 || hits[0].Views != 200 {
		t.Fatalf("expected top-viewed chemed hit, got %+v", hits)
	}

	exists, _ := store.ChannelExists(ctx, "chemed")
	missing, _ := store.ChannelExists(ctx, "nope")
	if !exists || missing {
		t.Fatalf("ChannelExists = %v/%v", exists, missing)
	}

	visual, err := store.VisualCountsFromMessages(ctx)
	if err != nil {
		t.Fatalf("VisualCountsFromMessages: %v", err)
	}
	if len(visual) != 2 || visual[0].TotalImages != 1 || visual[0].Promotional != 0 {
		t.Fatalf("unexpected fallback counts %+v", visual)
	}
}

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := &warehouse.Run{ID: "run-1", Partition: "2024-03-01"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != warehouse.RunIdle || run.StageResults != "[]" {
		t.Fatalf("unexpected defaults %+v", run)
	}
	run.Status = warehouse.RunLoading
	run.CurrentStage = "loading"
	if err := store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	done := &warehouse.Run{ID: "run-0", Partition: "2024-02-29", StartedAt: time.Now().Add(-time.Hour)}
	if err := store.CreateRun(ctx, done); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	finished := time.Now().UTC()
	done.Status = warehouse.RunDone
	done.FinishedAt = &finished
	if err := store.UpdateRun(ctx, done); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	reclaimed, err := store.FailInterrupted(ctx, "interrupted")
	if err != nil {
		t.Fatalf("FailInterrupted: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected one reclaimed run, got %d", reclaimed)
	}
	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != warehouse.RunFailed || got.ErrorMessage != "interrupted" || got.FinishedAt == nil {
		t.Fatalf("unexpected reclaimed run %+v", got)
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-1" || runs[1].Status != warehouse.RunDone {
		t.Fatalf("unexpected run order %+v", runs)
	}

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.UpdateRun(ctx, &warehouse.Run{ID: "missing"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}
