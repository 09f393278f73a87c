package detection

import "time"

// NoneClass is recorded when the detector found nothing.
const NoneClass = "none"

// Detection is one labelled object reported by the detector.
type Detection struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// ImageRef identifies the image a set of detections belongs to.
type ImageRef struct {
	MessageID   int64
	ChannelName string
	// ImagePath is relative to the data directory, e.g. raw/images/chemed/12.jpg.
	ImagePath string
}

// Record is the enriched row written for every processed image.
type Record struct {
	MessageID       int64
	ChannelName     string
	ImagePath       string
	DetectedClass   string
	ConfidenceScore float64
	ImageCategory   Category
	DetectionCount  int
	DetectedAt      time.Time
}

// Top returns the detection with the strictly highest confidence. The first
// detection wins ties. ok is false for an empty slice.
func Top(detections []Detection) (top Detection, ok bool) {
	for i, d := range detections {
		if i == 0 || d.Confidence > top.Confidence {
			top = d
		}
	}
	return top, len(detections) > 0
}

// BuildRecord collapses the detections for one image into a Record.
func BuildRecord(ref ImageRef, detections []Detection, detectedAt time.Time) Record {
	rec := Record{
		MessageID:      ref.MessageID,
		ChannelName:    ref.ChannelName,
		ImagePath:      ref.ImagePath,
		DetectedClass:  NoneClass,
		ImageCategory:  ClassifyDetections(detections),
		DetectionCount: len(detections),
		DetectedAt:     detectedAt.UTC(),
	}
	if top, ok := Top(detections); ok {
		rec.DetectedClass = top.ClassName
		rec.ConfidenceScore = top.Confidence
	}
	return rec
}
