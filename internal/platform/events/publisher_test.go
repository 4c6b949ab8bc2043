package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestPublish_EnvelopesPayload(t *testing.T) {
	w := &captureWriter{}
	p := &Publisher{writer: w}

	err := p.Publish(context.Background(), "ledger.deposit.recorded", map[string]string{"deposit_id": "d1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "ledger.deposit.recorded" {
		t.Errorf("unexpected key %q", w.msgs[0].Key)
	}

	var env Envelope
	if err := json.Unmarshal(w.msgs[0].Value, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Event != "ledger.deposit.recorded" {
		t.Errorf("unexpected event %q", env.Event)
	}
	if env.OccurredAt.IsZero() {
		t.Error("expected occurred_at to be set")
	}
	payload, ok := env.Payload.(map[string]interface{})
	if !ok || payload["deposit_id"] != "d1" {
		t.Errorf("unexpected payload: %#v", env.Payload)
	}
}
