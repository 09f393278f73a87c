package workflow_test

import (
	"context"
	"sync"

	"medwarehouse/internal/notifications"
	"medwarehouse/internal/stage"
)

type stubNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (s *stubNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *stubNotifier) Close() error { return nil }

func (s *stubNotifier) last() (notifications.Event, notifications.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return "", nil
	}
	return s.events[len(s.events)-1], s.payloads[len(s.payloads)-1]
}

// fakeStage records its inputs and returns a scripted outcome.
type fakeStage struct {
	name     string
	result   stage.Result
	err      error
	block    bool
	executed int
	inputs   []stage.Input
}

func (f *fakeStage) Prepare(context.Context, stage.Input) error { return nil }

func (f *fakeStage) Execute(ctx context.Context, in stage.Input) (stage.Result, error) {
	f.executed++
	f.inputs = append(f.inputs, in)
	if f.block {
		<-ctx.Done()
		return stage.Result{}, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeStage) HealthCheck(context.Context) stage.Health {
	if f.err != nil {
		return stage.Unhealthy(f.name, f.err.Error())
	}
	return stage.Healthy(f.name)
}
