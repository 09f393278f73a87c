package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medwarehouse/internal/config"
)

// Event names a run milestone.
type Event string

const (
	EventRunStarted   Event = "run_started"
	EventRunCompleted Event = "run_completed"
	EventRunFailed    Event = "run_failed"
	EventTest         Event = "test"
)

// Payload carries event fields. Known keys: runID, partition, stages,
// duration, stage, error.
type Payload map[string]any

// Service publishes run events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
	Close() error
}

const defaultRequestTimeout = 10 * time.Second

// NewService builds the configured transports. When none is configured a
// no-op implementation is returned.
func NewService(cfg *config.Config) Service {
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	enabled := map[Event]bool{
		EventRunStarted:   cfg.Notifications.RunStarted,
		EventRunCompleted: cfg.Notifications.RunCompleted,
		EventRunFailed:    cfg.Notifications.RunFailed,
		EventTest:         true,
	}

	var services []Service
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		services = append(services, newNtfyService(topic, timeout))
	}
	if len(cfg.Notifications.KafkaBrokers) > 0 && strings.TrimSpace(cfg.Notifications.KafkaTopic) != "" {
		services = append(services, newKafkaService(cfg.Notifications.KafkaBrokers, cfg.Notifications.KafkaTopic, timeout))
	}
	switch len(services) {
	case 0:
		return noopService{}
	case 1:
		return filtered{inner: services[0], enabled: enabled}
	default:
		return filtered{inner: multiService(services), enabled: enabled}
	}
}

type filtered struct {
	inner   Service
	enabled map[Event]bool
}

func (f filtered) Publish(ctx context.Context, event Event, payload Payload) error {
	if !f.enabled[event] {
		return nil
	}
	return f.inner.Publish(ctx, event, payload)
}

func (f filtered) Close() error { return f.inner.Close() }

// multiService fans an event out to every transport and joins their errors.
type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiService) Close() error {
	var errs []error
	for _, svc := range m {
		if err := svc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
func (noopService) Close() error                                  { return nil }

func stringValue(p Payload, key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(v.Error())
	case time.Duration:
		return v.Round(time.Second).String()
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
