package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	simulation "solarflow-cloud/internal/simulation/domain"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisherKeysBySubscriber(t *testing.T) {
	writer := &fakeWriter{}
	p := &Publisher{writer: writer}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := p.Publish(context.Background(), simulation.EnergyReading{SubscriberID: "sub-1", Timestamp: ts, SolarGenerationKW: 2.5}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "sub-1" {
		t.Fatalf("expected key sub-1, got %q", msg.Key)
	}
	if !msg.Time.Equal(ts) {
		t.Fatalf("expected time %s, got %s", ts, msg.Time)
	}
	var decoded simulation.EnergyReading
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.SolarGenerationKW != 2.5 {
		t.Fatalf("expected solar 2.5, got %v", decoded.SolarGenerationKW)
	}
	if err := p.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer closed")
	}
}

func TestPublisherPropagatesWriteError(t *testing.T) {
	writeErr := errors.New("broker down")
	p := &Publisher{writer: &fakeWriter{err: writeErr}}
	err := p.Publish(context.Background(), simulation.EnergyReading{SubscriberID: "sub-1", Timestamp: time.Now()})
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestNewPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewPublisher(nil, ""); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
