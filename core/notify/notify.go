// Package notify publishes domain events.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/agrigate/core/logger"
)

// Operation is the kind of event
type Operation string

// all published operations
const (
	OperationCreate Operation = "create"
	OperationSync   Operation = "sync"
)

// Notifier receives events about resources
type Notifier interface {
	Notify(ctx context.Context, resource string, operation Operation, payload []byte) error
	Close() error
}

// Nop drops every event
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(ctx context.Context, resource string, operation Operation, payload []byte) error {
	return nil
}

// Close implements Notifier
func (Nop) Close() error { return nil }

// batchTimeout bounds how long a single event waits for siblings before it is flushed
const batchTimeout = 5 * time.Millisecond

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events to one Kafka topic. The message key is the resource, the
// operation and request id travel as headers.
type Kafka struct {
	writer messageWriter
	topic  string
}

// NewKafka returns a notifier writing to topic on brokers
func NewKafka(brokers []string, topic string) *Kafka {
	logger.Default().Infof("publishing events to kafka topic %s on %v", topic, brokers)
	return &Kafka{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           batchTimeout,
			WriteTimeout:           10 * time.Second,
		},
	}
}

// Notify implements Notifier
func (k *Kafka) Notify(ctx context.Context, resource string, operation Operation, payload []byte) error {
	msg := kafka.Message{
		Key:   []byte(resource),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(operation)},
		},
	}
	if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "requestID", Value: []byte(requestID)})
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("cannot publish %s %s to %s: %w", operation, resource, k.topic, err)
	}
	return nil
}

// Close flushes pending messages
func (k *Kafka) Close() error {
	return k.writer.Close()
}
