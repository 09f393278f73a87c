package enrichment_test

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"medwarehouse/internal/detection"
	"medwarehouse/internal/dimensional"
	"medwarehouse/internal/enrichment"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/testsupport"
	"medwarehouse/internal/warehouse"
)

type scriptedDetector struct {
	calls atomic.Int32
}

func (d *scriptedDetector) Describe() string { return "scripted" }

func (d *scriptedDetector) Detect(ctx context.Context, path string) ([]detection.Detection, error) {
	d.calls.Add(1)
	switch filepath.Base(path) {
	case "1.jpg":
		return []detection.Detection{{ClassName: "bottle", Confidence: 0.6}, {ClassName: "person", Confidence: 0.9}}, nil
	case "2.jpg":
		return nil, errors.New("model crashed")
	case "3.jpg":
		<-ctx.Done()
		return nil, ctx.Err()
	default:
		return nil, nil
	}
}

func imageMessage(channel string, id int64) warehouse.Message {
	msg := testsupport.NewMessage(channel, id, "2024-03-01", "post", 10)
	msg.HasMedia = true
	msg.ImagePath = "raw/images/" + channel + "/" + strconv.FormatInt(id, 10) + ".jpg"
	return msg
}

func TestEnricherRunIsolatesFailuresAndIsIncremental(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Detector.TimeoutSeconds = 1
	cfg.Detector.Workers = 3
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	msgs := []warehouse.Message{
		imageMessage("chemed", 1),
		imageMessage("chemed", 2),
		imageMessage("chemed", 3),
		imageMessage("chemed", 4),
		imageMessage("tikvahpharma", 5),
		testsupport.NewMessage("chemed", 6, "2024-03-01", "no image", 1),
	}
	testsupport.MustInsertMessages(t, store, msgs...)
	for _, id := range []int64{1, 2, 3} {
		testsupport.WriteImage(t, filepath.Join(cfg.Paths.DataDir, "raw", "images", "chemed", strconv.FormatInt(id, 10)+".jpg"))
	}
	// 4.jpg is never written: a missing image fails alone.
	testsupport.WriteImage(t, filepath.Join(cfg.Paths.DataDir, "raw", "images", "tikvahpharma", "5.jpg"))

	builder := dimensional.NewBuilder(cfg, store, logging.NewNop())
	if _, err := builder.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	det := &scriptedDetector{}
	enricher := enrichment.New(cfg, store, det, builder, logging.NewNop())
	summary, err := enricher.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Candidates != 5 || summary.Processed != 2 || summary.Failed != 3 || summary.Inserted != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.ByCategory["promotional"] != 1 || summary.ByCategory["other"] != 1 {
		t.Fatalf("unexpected categories %v", summary.ByCategory)
	}
	if summary.ByChannel["tikvahpharma"]["other"] != 1 {
		t.Fatalf("unexpected channel breakdown %v", summary.ByChannel)
	}
	if len(summary.TopObjects) != 2 || summary.TopObjects[0].Class != detection.NoneClass || summary.TopObjects[1].Class != "person" {
		t.Fatalf("unexpected top objects %+v", summary.TopObjects)
	}
	if summary.DetectionFacts != 2 {
		t.Fatalf("expected detection mart rebuilt with 2 rows, got %d", summary.DetectionFacts)
	}

	rows := readCSV(t, enricher.CSVPath())
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "message_id" || rows[1][1] != "chemed" || rows[1][3] != "person" || rows[1][5] != "promotional" || rows[2][1] != "tikvahpharma" {
		t.Fatalf("unexpected csv %v", rows)
	}

	// A second run only retries the images that previously failed.
	before := det.calls.Load()
	again, err := enricher.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.AlreadyEnriched != 2 || again.Inserted != 0 {
		t.Fatalf("unexpected second summary %+v", again)
	}
	// 4.jpg is rejected before the detector is called.
	if calls := det.calls.Load() - before; calls != 2 {
		t.Fatalf("expected 2 detector calls on rerun, got %d", calls)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}
