package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON to a topic, keyed by entity id so events
// for one account stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// Writer settings. Events are written one at a time from request paths, so
// batching waits are kept short and retries few.
const (
	kafkaBatchTimeout = 10 * time.Millisecond
	kafkaWriteTimeout = 2 * time.Second
	kafkaMaxAttempts  = 3
)

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           kafkaBatchTimeout,
			WriteTimeout:           kafkaWriteTimeout,
			MaxAttempts:            kafkaMaxAttempts,
			RequiredAcks:           kafka.RequireOne,
		},
		topic: topic,
	}
}

func (k *KafkaSink) Emit(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.topic,
		Key:   []byte(ev.EntityType + ":" + ev.EntityID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaSink) Close() error { return k.writer.Close() }
