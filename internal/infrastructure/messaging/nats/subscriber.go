package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Subscriber wraps a Watermill NATS subscriber.
type Subscriber struct {
	subscriber *nats.Subscriber
	logger     watermill.LoggerAdapter
}

// NewSubscriber connects a subscriber to natsURL.
func NewSubscriber(natsURL string, logger watermill.LoggerAdapter) (*Subscriber, error) {
	sub, err := nats.NewSubscriber(
		nats.SubscriberConfig{URL: natsURL, Unmarshaler: nats.GobMarshaler{}},
		logger,
	)
	if err != nil {
		return nil, err
	}
	return &Subscriber{subscriber: sub, logger: logger}, nil
}

// Subscribe subscribes to subject, returning the message channel.
func (s *Subscriber) Subscribe(ctx context.Context, subject string) (<-chan *message.Message, error) {
	return s.subscriber.Subscribe(ctx, subject)
}

// Close closes the underlying subscriber.
func (s *Subscriber) Close() error {
	return s.subscriber.Close()
}
