package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type captureWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.messages = append(c.messages, msgs...)
	return c.err
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestKafkaServiceWritesRecord(t *testing.T) {
	writer := &captureWriter{}
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := &kafkaService{writer: writer, now: func() time.Time { return at }}

	err := svc.Publish(context.Background(), EventRunFailed, Payload{
		"runID":     "run-7",
		"partition": "2024-03-01",
		"stage":     "enriching",
		"error":     errors.New("detector missing"),
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "run-7" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	var record Record
	if err := json.Unmarshal(msg.Value, &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if !record.Timestamp.Equal(at) {
		t.Fatalf("unexpected timestamp %s", record.Timestamp)
	}
	record.Timestamp = time.Time{}
	want := Record{Event: EventRunFailed, RunID: "run-7", Partition: "2024-03-01", Stage: "enriching", Error: "detector missing"}
	if record != want {
		t.Fatalf("record = %+v, want %+v", record, want)
	}
}

func TestMultiServiceJoinsErrors(t *testing.T) {
	failing := &kafkaService{writer: &captureWriter{err: errors.New("broker down")}, now: time.Now}
	healthy := &captureWriter{}
	multi := multiService{failing, &kafkaService{writer: healthy, now: time.Now}}

	err := multi.Publish(context.Background(), EventTest, nil)
	if err == nil {
		t.Fatal("expected the failing transport's error")
	}
	if len(healthy.messages) != 1 {
		t.Fatal("healthy transport should still receive the event")
	}
	if err := multi.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !healthy.closed {
		t.Fatal("Close should reach every transport")
	}
}
