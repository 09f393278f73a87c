package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"medwarehouse/internal/services"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	retried := 0
	err := services.Retry(context.Background(), 3, time.Millisecond, func(int) error {
		calls++
		if calls < 2 {
			return services.Wrap(services.ErrTransient, "loading", "read", "flaky", nil)
		}
		return nil
	}, func(int, error, time.Duration) { retried++ })
	if err != nil {
		t.Fatalf("Retry returned %v", err)
	}
	if calls != 2 || retried != 1 {
		t.Fatalf("calls=%d retried=%d", calls, retried)
	}
}

func TestRetryGivesUpOnPermanentErrors(t *testing.T) {
	calls := 0
	want := services.Wrap(services.ErrValidation, "loading", "decode", "bad", nil)
	err := services.Retry(context.Background(), 5, 0, func(int) error {
		calls++
		return want
	}, nil)
	if !errors.Is(err, services.ErrValidation) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := services.Retry(context.Background(), 3, 0, func(int) error {
		calls++
		return services.ErrTransient
	}, nil)
	if !errors.Is(err, services.ErrTransient) || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}
