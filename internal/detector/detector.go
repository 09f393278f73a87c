// Package detector invokes the object-detection collaborator for one image.
//
// Two transports are supported: a local command that prints a JSON array of
// detections, and an HTTP endpoint that accepts the raw image bytes.
package detector

import (
	"context"
	"fmt"
	"strings"

	"medwarehouse/internal/config"
	"medwarehouse/internal/detection"
	"medwarehouse/internal/services"
)

// Detector returns the objects found in the image at an absolute path.
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]detection.Detection, error)
	// Describe names the transport for status output.
	Describe() string
}

// New builds the detector selected by cfg.Detector.Mode.
func New(cfg *config.Config) (Detector, error) {
	switch strings.ToLower(cfg.Detector.Mode) {
	case "command":
		return NewCommand(cfg.Detector.Command, nil)
	case "http":
		return NewHTTP(cfg.Detector.URL, cfg.DetectorTimeout(), nil)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "detector", "init", fmt.Sprintf("unknown mode %q", cfg.Detector.Mode), nil)
	}
}

func validate(dets []detection.Detection) ([]detection.Detection, error) {
	out := make([]detection.Detection, 0, len(dets))
	for i, d := range dets {
		name := strings.TrimSpace(d.ClassName)
		if name == "" {
			return nil, fmt.Errorf("detection %d has empty class_name", i)
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			return nil, fmt.Errorf("detection %d (%s) confidence %v outside [0,1]", i, name, d.Confidence)
		}
		out = append(out, detection.Detection{ClassName: name, Confidence: d.Confidence})
	}
	return out, nil
}
