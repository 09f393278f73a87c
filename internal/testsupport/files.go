package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"medwarehouse/internal/config"
	"medwarehouse/internal/lake"
)

// WriteLakeFile writes messages as the lake file for (partition, channel)
// and returns its path.
func WriteLakeFile(t testing.TB, cfg *config.Config, partition, channel string, messages []lake.Message) string {
	t.Helper()

	path, err := lake.Layout{DataDir: cfg.Paths.DataDir}.WriteChannel(partition, channel, messages)
	if err != nil {
		t.Fatalf("write lake file: %v", err)
	}
	return path
}

// WriteRawLakeFile writes arbitrary bytes as a lake file, for malformed input.
func WriteRawLakeFile(t testing.TB, cfg *config.Config, partition, channel string, content []byte) string {
	t.Helper()

	path := lake.Layout{DataDir: cfg.Paths.DataDir}.ChannelFile(partition, channel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteImage writes a small solid JPEG at path.
func WriteImage(t testing.TB, path string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
