package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "medwarehouse/0.1.0"

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func newNtfyService(endpoint string, timeout time.Duration) *ntfyService {
	return &ntfyService{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) Close() error { return nil }

func format(event Event, payload Payload) (message, bool) {
	partition := stringValue(payload, "partition")
	switch event {
	case EventRunStarted:
		return message{
			title: "Medwarehouse - Run Started",
			body:  fmt.Sprintf("Pipeline run started for %s", partition),
			tags:  []string{"medwarehouse", "run", "started"},
		}, true
	case EventRunCompleted:
		body := fmt.Sprintf("✅ Pipeline run complete for %s", partition)
		if d := stringValue(payload, "duration"); d != "" {
			body += " in " + d
		}
		if stages := stringValue(payload, "stages"); stages != "" {
			body += "\n" + stages
		}
		return message{
			title: "Medwarehouse - Run Complete",
			body:  body,
			tags:  []string{"medwarehouse", "run", "completed"},
		}, true
	case EventRunFailed:
		var b strings.Builder
		b.WriteString("❌ Pipeline run failed")
		if stage := stringValue(payload, "stage"); stage != "" {
			b.WriteString(" at ")
			b.WriteString(stage)
		}
		b.WriteString(": ")
		if errText := stringValue(payload, "error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "Medwarehouse - Run Failed",
			body:     b.String(),
			tags:     []string{"medwarehouse", "run", "failed"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Medwarehouse - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"medwarehouse", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
