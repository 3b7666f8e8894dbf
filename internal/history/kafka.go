package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventOrderPlaced is the type header of published order events.
const EventOrderPlaced = "esim.order.placed"

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "esim.orders"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublisherOptions configures a Kafka Publisher.
type PublisherOptions struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Publisher emits one message per order, keyed by order number so events of
// an order land on the same partition.
type Publisher struct {
	w       messageWriter
	timeout time.Duration
}

// NewPublisher returns nil when no brokers are configured.
func NewPublisher(opts PublisherOptions) *Publisher {
	if len(opts.Brokers) == 0 {
		return nil
	}
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Publisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(opts.Brokers...),
			Topic:                  opts.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		timeout: opts.WriteTimeout,
	}
}

type orderEvent struct {
	Type string `json:"type"`
	Order
}

// Save publishes o synchronously within the write timeout.
func (p *Publisher) Save(ctx context.Context, o Order) error {
	value, err := json.Marshal(orderEvent{Type: EventOrderPlaced, Order: o})
	if err != nil {
		return fmt.Errorf("history: encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(o.OrderNo),
		Value: value,
		Time:  o.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(EventOrderPlaced)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("history: publish %s: %w", o.OrderNo, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.w.Close()
}
