// Package nats wraps a Watermill-over-NATS publisher/subscriber pair used
// by the transport bridge to fan domain events out to realtime clients.
package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
)

// Publisher wraps a Watermill NATS publisher.
type Publisher struct {
	publisher *nats.Publisher
	logger    watermill.LoggerAdapter
}

// NewPublisher connects to natsURL and ensures the graflow JetStream
// stream exists before returning.
func NewPublisher(natsURL string, logger watermill.LoggerAdapter) (*Publisher, error) {
	nc, err := natsgo.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if err := ensureStream(js); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	pub, err := nats.NewPublisher(
		nats.PublisherConfig{URL: natsURL, Marshaler: nats.GobMarshaler{}},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return &Publisher{publisher: pub, logger: logger}, nil
}

// Publish marshals payload to JSON and publishes it under subject.
func (p *Publisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	return p.publisher.Publish(subject, msg)
}

// Close closes the underlying publisher.
func (p *Publisher) Close() error {
	return p.publisher.Close()
}

func ensureStream(js natsgo.JetStreamContext) error {
	const name = "graflow-workspaces"
	if _, err := js.StreamInfo(name); err == nil {
		return nil
	}
	_, err := js.AddStream(&natsgo.StreamConfig{
		Name:     name,
		Subjects: []string{"graflow.workspace.>"},
		Storage:  natsgo.FileStorage,
		Replicas: 1,
	})
	return err
}
