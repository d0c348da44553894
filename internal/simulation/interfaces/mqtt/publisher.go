package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	simulation "solarflow-cloud/internal/simulation/domain"
)

// DefaultTopicPrefix prefixes per-subscriber topics.
const DefaultTopicPrefix = "solarflow/readings"

const publishTimeout = 5 * time.Second

type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Publisher sends readings to <prefix>/<subscriber_id>.
type Publisher struct {
	client tokenPublisher
	prefix string
	qos    byte
}

// Connect dials the broker and returns a publisher.
func Connect(brokerURL, clientID, prefix string) (*Publisher, func(), error) {
	if brokerURL == "" {
		return nil, nil, errors.New("mqtt publisher: empty broker url")
	}
	if clientID == "" {
		clientID = "solarflow-cloud"
	}
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(publishTimeout)
	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, nil, errors.New("mqtt publisher: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("mqtt publisher: connect: %w", err)
	}
	closeFn := func() { client.Disconnect(250) }
	return NewPublisher(client, prefix), closeFn, nil
}

// NewPublisher wraps a connected client.
func NewPublisher(client tokenPublisher, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Publisher{client: client, prefix: strings.TrimSuffix(prefix, "/")}
}

// Topic returns the topic for a subscriber.
func (p *Publisher) Topic(subscriberID string) string {
	return p.prefix + "/" + subscriberID
}

// Publish implements simulation.Broadcaster.
func (p *Publisher) Publish(ctx context.Context, reading simulation.EnergyReading) error {
	payload, err := json.Marshal(reading)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.Topic(reading.SubscriberID), p.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return errors.New("mqtt publisher: publish timeout")
	}
	return token.Error()
}
