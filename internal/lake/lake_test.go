package lake_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"medwarehouse/internal/lake"
	"medwarehouse/internal/services"
)

func strPtr(s string) *string { return &s }

func TestParseTimestampLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2025-01-15T10:30:00Z":       time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
		"2025-01-15T13:30:00+03:00":  time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
		"2025-01-15T10:30:00.123456": time.Date(2025, 1, 15, 10, 30, 0, 123456000, time.UTC),
		"2025-01-15T10:30:00":        time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
		"2025-01-15 10:30:00":        time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
		"2025-01-15":                 time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := lake.ParseTimestamp(in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", in, err)
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("ParseTimestamp(%q) = %v, want %v", in, got.Time, want)
		}
	}
	if _, err := lake.ParseTimestamp("15/01/2025"); err == nil {
		t.Fatal("expected error for unsupported layout")
	}
}

func TestMessageValidateImageInvariant(t *testing.T) {
	base := lake.Message{
		MessageID:   7,
		ChannelName: "chemed",
		MessageDate: lake.NewTimestamp(time.Now()),
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("text-only message should be valid: %v", err)
	}

	withMedia := base
	withMedia.HasMedia = true
	if err := withMedia.Validate(); err == nil {
		t.Fatal("has_media without image_path must be rejected")
	}
	withMedia.ImagePath = strPtr("raw/images/chemed/7.jpg")
	if err := withMedia.Validate(); err != nil {
		t.Fatalf("media message should be valid: %v", err)
	}

	orphan := base
	orphan.ImagePath = strPtr("raw/images/chemed/7.jpg")
	if err := orphan.Validate(); err == nil {
		t.Fatal("image_path without has_media must be rejected")
	}
}

func TestWriteAndReadChannel(t *testing.T) {
	layout := lake.Layout{DataDir: t.TempDir()}
	msgs := []lake.Message{
		{MessageID: 20, ChannelName: "chemed", MessageDate: lake.NewTimestamp(time.Date(2025, 1, 14, 8, 0, 0, 0, time.UTC)), MessageText: "Vitamin C <1000mg>", Views: 10},
		{MessageID: 10, ChannelName: "chemed", MessageDate: lake.NewTimestamp(time.Date(2025, 1, 13, 8, 0, 0, 0, time.UTC)), HasMedia: true, ImagePath: strPtr(layout.RelImagePath("chemed", 10))},
	}
	path, err := layout.WriteChannel("2025-01-15", "chemed", msgs)
	if err != nil {
		t.Fatalf("WriteChannel: %v", err)
	}
	if want := filepath.Join(layout.DataDir, "raw", "telegram_messages", "2025-01-15", "chemed.json"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "\n  {") {
		t.Fatalf("expected indented JSON, got %s", raw)
	}
	if !strings.Contains(string(raw), "<1000mg>") {
		t.Fatalf("expected unescaped text, got %s", raw)
	}

	got, err := lake.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 2 || got[0].MessageID != 10 || got[1].MessageID != 20 {
		t.Fatalf("expected messages sorted by id, got %+v", got)
	}
	if got[0].ImagePathValue() != "raw/images/chemed/10.jpg" {
		t.Fatalf("unexpected image path %q", got[0].ImagePathValue())
	}
}

func TestReadFileMalformed(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`[{"message_id": "x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := lake.ReadFile(bad); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	invalid := filepath.Join(dir, "invalid.json")
	payload, _ := json.Marshal([]map[string]any{{
		"message_id":   1, "channel_name": "chemed", "message_date": "2025-01-15T00:00:00",
		"message_text": "", "views": 1, "forwards": 0, "has_media": true, "image_path": nil,
	}})
	if err := os.WriteFile(invalid, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := lake.ReadFile(invalid); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for invariant breach, got %v", err)
	}
}

func TestListPartition(t *testing.T) {
	layout := lake.Layout{DataDir: t.TempDir()}
	if _, err := layout.ListPartition("2025-01-15"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for missing partition, got %v", err)
	}
	if _, err := layout.ListPartition("15-01-2025"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad partition, got %v", err)
	}

	dir := layout.PartitionDir("2025-01-15")
	for _, name := range []string{"tikvahpharma.json", "chemed.json", "notes.txt", ".chemed.json.123.tmp"} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := layout.ListPartition("2025-01-15")
	if err != nil {
		t.Fatalf("ListPartition: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "chemed.json" || filepath.Base(files[1]) != "tikvahpharma.json" {
		t.Fatalf("unexpected files %v", files)
	}
}

func TestLayoutRelAbs(t *testing.T) {
	layout := lake.Layout{DataDir: "/data"}
	rel := layout.RelImagePath("Lobelia4Cosmetics", 42)
	if rel != "raw/images/lobelia4cosmetics/42.jpg" {
		t.Fatalf("RelImagePath = %q", rel)
	}
	if abs := layout.Abs(rel); abs != filepath.Join("/data", "raw", "images", "lobelia4cosmetics", "42.jpg") {
		t.Fatalf("Abs = %q", abs)
	}
	if back := layout.Rel(layout.Abs(rel)); back != rel {
		t.Fatalf("Rel = %q", back)
	}
	if outside := layout.Rel("/elsewhere/x.jpg"); outside != "/elsewhere/x.jpg" {
		t.Fatalf("Rel outside = %q", outside)
	}
}
