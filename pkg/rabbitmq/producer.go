/**
 * @description
 * This package provides the RabbitMQ producer and consumer used by the admin-service.
 * The producer publishes committed ledger decisions (`ledger.<action>`) and collection
 * change notifications (`ledger.<collection>.changed`) to a durable topic exchange.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 * - internal/domain: For the event payloads.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/transfa/admin-service/internal/domain"
)

// Publisher is the interface implemented by types that can publish ledger events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	PublishLedgerEvent(ctx context.Context, event domain.LedgerEvent) error
	PublishCollectionChanged(ctx context.Context, collection domain.Collection) error
	Close()
}

// LedgerEventRoutingKey is the routing key a decision is published under.
func LedgerEventRoutingKey(action string) string {
	return "ledger." + action
}

// CollectionRoutingKey is the routing key announcing a change to one collection.
func CollectionRoutingKey(c domain.Collection) string {
	return "ledger." + string(c) + ".changed"
}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	exchange string
	appID    string // stamped on every message so this instance can skip its own echoes
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is unavailable at startup.
type EventProducerFallback struct {
	Logger *slog.Logger
}

func (p *EventProducerFallback) log() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *EventProducerFallback) Publish(ctx context.Context, routingKey string, body interface{}) error {
	p.log().Warn("publish skipped", "component", "rabbitmq_producer", "mode", "fallback", "routing_key", routingKey)
	return nil
}

func (p *EventProducerFallback) PublishLedgerEvent(ctx context.Context, event domain.LedgerEvent) error {
	return p.Publish(ctx, LedgerEventRoutingKey(event.Action), event)
}

func (p *EventProducerFallback) PublishCollectionChanged(ctx context.Context, collection domain.Collection) error {
	return p.Publish(ctx, CollectionRoutingKey(collection), nil)
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// Stray characters before the scheme come from badly quoted env files.
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ and returns a producer bound to one topic exchange.
func NewEventProducer(amqpURL, exchange, appID string, logger *slog.Logger) (*EventProducer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{
		exchange: exchange,
		appID:    appID,
		logger:   logger.With("component", "rabbitmq_producer"),
		conn:     conn,
		channel:  ch,
	}, nil
}

// Publish sends a JSON message to the producer's exchange.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		p.logger.Error("json marshal failed", "routing_key", routingKey, "error", err)
		return err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		AppId:        p.appID,
		Timestamp:    time.Now(),
		Body:         jsonBody,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.declare(); err != nil {
		p.logger.Warn("exchange declare failed; reopening channel", "exchange", p.exchange, "error", err)
		if err := p.reopen(); err != nil {
			return err
		}
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	p.logger.Warn("publish failed; reopening channel", "exchange", p.exchange, "routing_key", routingKey, "error", err)
	if reopenErr := p.reopen(); reopenErr != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

// PublishLedgerEvent publishes a committed decision.
func (p *EventProducer) PublishLedgerEvent(ctx context.Context, event domain.LedgerEvent) error {
	return p.Publish(ctx, LedgerEventRoutingKey(event.Action), event)
}

// PublishCollectionChanged announces that a collection was written.
func (p *EventProducer) PublishCollectionChanged(ctx context.Context, collection domain.Collection) error {
	return p.Publish(ctx, CollectionRoutingKey(collection), domain.CollectionChangedEvent{
		Collection: collection,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *EventProducer) declare() error {
	return p.channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	)
}

// reopen replaces the channel once and re-declares the exchange. Caller holds mu.
func (p *EventProducer) reopen() error {
	if p.conn == nil || p.conn.IsClosed() {
		return amqp091.ErrClosed
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	p.channel = ch
	return p.declare()
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
