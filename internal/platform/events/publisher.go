// Package events publishes ledger domain events to Kafka so that downstream
// consumers (billing reports, reconciliation jobs) can react to committed
// balance changes without polling the database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Envelope wraps every published event with routing metadata.
type Envelope struct {
	Event      string      `json:"event"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// messageWriter is the slice of kafka.Writer the publisher depends on,
// extracted so tests can capture messages without a broker.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes ledger events to a single Kafka topic, keyed by event
// name so consumers can partition-order per event type.
type Publisher struct {
	writer messageWriter
}

// NewPublisher creates a Publisher against the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Publish marshals the payload into an envelope and writes it. Callers invoke
// this after their transaction commits; a publish failure is surfaced so the
// caller can log it, but it never rolls back committed ledger state.
func (p *Publisher) Publish(ctx context.Context, event string, payload interface{}) error {
	data, err := json.Marshal(Envelope{
		Event:      event,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event),
		Value: data,
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
