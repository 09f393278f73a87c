package testsupport

import (
	"context"
	"testing"
	"time"

	"medwarehouse/internal/config"
	"medwarehouse/internal/warehouse"
)

// MustOpenStore opens a warehouse.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *warehouse.Store {
	t.Helper()

	store, err := warehouse.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("warehouse.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustInsertMessages inserts raw messages and fails the test on error.
func MustInsertMessages(t testing.TB, store *warehouse.Store, messages ...warehouse.Message) warehouse.InsertStats {
	t.Helper()

	stats, err := store.InsertMessages(context.Background(), messages)
	if err != nil {
		t.Fatalf("InsertMessages: %v", err)
	}
	return stats
}

// NewMessage builds a raw message dated at the given UTC day.
func NewMessage(channel string, id int64, day string, text string, views int) warehouse.Message {
	date, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return warehouse.Message{
		ChannelName: channel,
		MessageID:   id,
		MessageDate: date.Add(10 * time.Hour),
		MessageText: text,
		ViewCount:   views,
		ScrapedAt:   date.Add(12 * time.Hour),
	}
}
