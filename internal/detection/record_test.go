package detection_test

import (
	"testing"
	"time"

	"medwarehouse/internal/detection"
)

var ref = detection.ImageRef{MessageID: 101, ChannelName: "chemed", ImagePath: "raw/images/chemed/101.jpg"}

func TestBuildRecordPicksTopConfidence(t *testing.T) {
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.FixedZone("EAT", 3*3600))
	rec := detection.BuildRecord(ref, []detection.Detection{
		{ClassName: "person", Confidence: 0.72},
		{ClassName: "bottle", Confidence: 0.91},
		{ClassName: "cup", Confidence: 0.40},
	}, at)

	if rec.DetectedClass != "bottle" || rec.ConfidenceScore != 0.91 {
		t.Fatalf("unexpected top detection %q %.2f", rec.DetectedClass, rec.ConfidenceScore)
	}
	if rec.ImageCategory != detection.CategoryPromotional {
		t.Fatalf("category = %q", rec.ImageCategory)
	}
	if rec.DetectionCount != 3 {
		t.Fatalf("detection count = %d", rec.DetectionCount)
	}
	if rec.MessageID != 101 || rec.ChannelName != "chemed" || rec.ImagePath != ref.ImagePath {
		t.Fatalf("identity not carried over: %+v", rec)
	}
	if rec.DetectedAt.Location() != time.UTC || !rec.DetectedAt.Equal(at) {
		t.Fatalf("detected_at not normalized to UTC: %v", rec.DetectedAt)
	}
}

func TestBuildRecordTieKeepsFirstSeen(t *testing.T) {
	rec := detection.BuildRecord(ref, []detection.Detection{
		{ClassName: "cup", Confidence: 0.8},
		{ClassName: "vase", Confidence: 0.8},
	}, time.Now())
	if rec.DetectedClass != "cup" {
		t.Fatalf("expected first-seen class on tie, got %q", rec.DetectedClass)
	}
}

func TestBuildRecordEmpty(t *testing.T) {
	rec := detection.BuildRecord(ref, nil, time.Now())
	if rec.DetectedClass != detection.NoneClass || rec.ConfidenceScore != 0 {
		t.Fatalf("unexpected empty record %+v", rec)
	}
	if rec.ImageCategory != detection.CategoryOther || rec.DetectionCount != 0 {
		t.Fatalf("unexpected empty record %+v", rec)
	}
}

func TestTopWithZeroConfidence(t *testing.T) {
	top, ok := detection.Top([]detection.Detection{{ClassName: "dog", Confidence: 0}})
	if !ok || top.ClassName != "dog" {
		t.Fatalf("expected dog, got %+v ok=%v", top, ok)
	}
}
