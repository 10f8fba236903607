// Package notify publishes pipeline outcomes to Kafka.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/thumbnailer/internal/model"
)

// sender is the part of the Kafka producer the publisher needs.
type sender interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key, value []byte) error
}

// Producer publishes outcomes as JSON messages keyed by outcome ID.
type Producer struct {
	client   sender
	closer   func() error
	strategy retry.Strategy
}

// New creates a Producer writing to topic on brokers.
func New(brokers []string, topic string, s retry.Strategy) *Producer {
	p := wbfkafka.NewProducer(brokers, topic)

	return &Producer{
		client:   p,
		closer:   p.Close,
		strategy: s,
	}
}

// Publish sends the outcome.
func (p *Producer) Publish(ctx context.Context, o model.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	key := []byte(o.ID.String())

	if err := p.client.SendWithRetry(ctx, p.strategy, key, data); err != nil {
		return fmt.Errorf("failed to send outcome: %w", err)
	}

	return nil
}

// Close releases the underlying Kafka writer.
func (p *Producer) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
