package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"

	simulation "solarflow-cloud/internal/simulation/domain"
)

// DefaultTopic receives live readings.
const DefaultTopic = "solarflow.readings"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes readings to a Kafka topic keyed by subscriber id so that
// all readings of one subscriber land on the same partition.
type Publisher struct {
	writer messageWriter
}

// NewPublisher constructs a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: no brokers")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}}, nil
}

// Publish implements simulation.Broadcaster.
func (p *Publisher) Publish(ctx context.Context, reading simulation.EnergyReading) error {
	payload, err := json.Marshal(reading)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(reading.SubscriberID),
		Value: payload,
		Time:  reading.Timestamp,
	})
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
