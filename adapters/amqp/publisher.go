// Package amqp publishes account activity to a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	amqp "github.com/rabbitmq/amqp091-go"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
)

const DefaultExchange = "accounts.events"

// Channel is the subset of *amqp.Channel the publisher uses
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher is an accounts.ActivitySink that publishes normalized events.
// The routing key is the event type, e.g. account.status.changed.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  Channel
	exchange string
	declared bool
	options  []activitymap.Option
	logger   accounts.Logger
}

var _ accounts.ActivitySink = (*Publisher)(nil)

type Option func(*Publisher)

func WithExchange(name string) Option {
	return func(p *Publisher) {
		if name = strings.TrimSpace(name); name != "" {
			p.exchange = name
		}
	}
}

func WithLogger(logger accounts.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// Dial connects to the broker and opens a channel
func Dial(amqpURL string, opts ...Option) (*Publisher, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to connect to amqp broker")
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to open amqp channel")
	}

	p := NewPublisher(channel, opts...)
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an open channel
func NewPublisher(channel Channel, opts ...Option) *Publisher {
	p := &Publisher{
		channel:  channel,
		exchange: DefaultExchange,
		options:  []activitymap.Option{activitymap.WithEmail()},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Record implements accounts.ActivitySink.
func (p *Publisher) Record(ctx context.Context, event accounts.ActivityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared {
		if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to declare exchange").
				WithMetadata(map[string]any{"exchange": p.exchange})
		}
		p.declared = true
	}

	normalized := activitymap.Normalize(event, p.options...)
	payload, err := json.Marshal(normalized)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode activity event")
	}

	if err := p.channel.PublishWithContext(ctx, p.exchange, normalized.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    normalized.OccurredAt,
		Type:         normalized.Type,
		Body:         payload,
	}); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to publish activity event").
			WithMetadata(map[string]any{"exchange": p.exchange, "routing_key": normalized.Type})
	}

	if p.logger != nil {
		p.logger.Debug("activity published", "exchange", p.exchange, "routing_key", normalized.Type)
	}
	return nil
}

// Close releases channel and connection resources.
func (p *Publisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid amqp url")
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", goerrors.New("AMQP scheme must be either 'amqp://' or 'amqps://'", goerrors.CategoryBadInput)
	}
	return clean, nil
}
