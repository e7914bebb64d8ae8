// Package amqp publishes change-feed events to a RabbitMQ topic exchange so
// other services can follow family activity.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/feed"
	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Channel is the subset of *amqp091.Channel used by the publisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

type Publisher struct {
	conn     *amqp091.Connection
	channel  Channel
	exchange string
	logger   *slog.Logger
}

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := NewPublisher(ch, exchange, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares a durable topic exchange on ch.
func NewPublisher(ch Channel, exchange string, logger *slog.Logger) (*Publisher, error) {
	err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger.With("component", "amqp"),
	}, nil
}

// RoutingKey is family.<family id>.<entity>.<action>. Dots in the family id
// are replaced so bindings like family.*.transaction.# keep working.
func RoutingKey(e feed.Event) string {
	fid := strings.ReplaceAll(e.FamilyID, ".", "_")
	return "family." + fid + "." + e.Entity + "." + e.Action
}

// Publish implements feed.Publisher.
func (p *Publisher) Publish(ctx context.Context, e feed.Event) error {
	if e.Entity == feed.EntitySession {
		return nil
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := RoutingKey(e)
	err = p.channel.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    e.At,
		Type:         e.Type,
		MessageId:    e.ID,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	p.logger.DebugContext(ctx, "published event", "routing_key", key)
	return nil
}

func (p *Publisher) Close() error {
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
