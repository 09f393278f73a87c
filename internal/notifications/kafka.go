package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Record is the JSON value written to the Kafka topic.
type Record struct {
	Event     Event     `json:"event"`
	RunID     string    `json:"run_id,omitempty"`
	Partition string    `json:"partition,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Stages    string    `json:"stages,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type kafkaService struct {
	writer  messageWriter
	timeout time.Duration
	now     func() time.Time
}

func newKafkaService(brokers []string, topic string, timeout time.Duration) *kafkaService {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: timeout,
	}
	return &kafkaService{writer: writer, timeout: timeout, now: time.Now}
}

func (k *kafkaService) Publish(ctx context.Context, event Event, payload Payload) error {
	record := Record{
		Event:     event,
		RunID:     stringValue(payload, "runID"),
		Partition: stringValue(payload, "partition"),
		Stage:     stringValue(payload, "stage"),
		Stages:    stringValue(payload, "stages"),
		Duration:  stringValue(payload, "duration"),
		Error:     stringValue(payload, "error"),
		Timestamp: k.now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	key := record.RunID
	if key == "" {
		key = string(event)
	}

	writeCtx := ctx
	if k.timeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}
	if err := k.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(key), Value: data}); err != nil {
		return fmt.Errorf("write run event to kafka: %w", err)
	}
	return nil
}

func (k *kafkaService) Close() error {
	return k.writer.Close()
}
