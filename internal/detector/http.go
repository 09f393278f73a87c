package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"medwarehouse/internal/detection"
	"medwarehouse/internal/services"
)

const maxResponseBytes = 1 << 20

// HTTP posts image bytes to a detection service.
type HTTP struct {
	endpoint string
	client   *http.Client
}

type httpResponse struct {
	Detections []detection.Detection `json:"detections"`
}

// NewHTTP builds an HTTP detector. A nil client gets one with timeout.
func NewHTTP(endpoint string, timeout time.Duration, client *http.Client) (*HTTP, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "detector", "init", fmt.Sprintf("invalid detector.url %q", endpoint), err)
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTP{endpoint: parsed.String(), client: client}, nil
}

// Endpoint is the detection service URL.
func (h *HTTP) Endpoint() string {
	return h.endpoint
}

func (h *HTTP) Describe() string {
	return "http: " + h.endpoint
}

func (h *HTTP) Detect(ctx context.Context, imagePath string) ([]detection.Detection, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "detector", "read image", imagePath, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "detector", "request", h.endpoint, err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "detector", "http", imagePath, err)
		}
		return nil, services.Wrap(services.ErrTransient, "detector", "http", imagePath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "detector", "http read", imagePath, err)
	}
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrExternalTool
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			marker = services.ErrTransient
		}
		return nil, services.Wrap(marker, "detector", "http", fmt.Sprintf("%s: status %d", imagePath, resp.StatusCode), nil)
	}
	var payload httpResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "detector", "decode", imagePath, err)
	}
	dets, err := validate(payload.Detections)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "detector", "decode", imagePath, err)
	}
	return dets, nil
}
