package rabbitmq

import (
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/transfa/admin-service/internal/domain"
)

type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	appID  string
	logger *slog.Logger
}

// NewConsumer dials RabbitMQ. Deliveries whose AppId equals appID were published by this
// instance and are dropped.
func NewConsumer(amqpURL, appID string, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, ch: ch, appID: appID, logger: logger.With("component", "rabbitmq_consumer")}, nil
}

// CollectionBindings routes every `ledger.<collection>.changed` key to handler.
func CollectionBindings(handler func([]byte) bool) map[string]func([]byte) bool {
	bindings := make(map[string]func([]byte) bool, len(domain.AllCollections))
	for _, c := range domain.AllCollections {
		bindings[CollectionRoutingKey(c)] = handler
	}
	return bindings
}

// InstanceQueueName derives the per-instance queue name from the configured base name.
func InstanceQueueName(base, instanceID string) string {
	return base + "." + instanceID
}

// ConsumeWithBindings declares an exclusive auto-delete queue, binds it for each routing
// key and dispatches deliveries to the matching handler. Every instance needs its own
// queue to see every change. A handler returning true acks; false requeues.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]func([]byte) bool) error {
	if len(bindings) == 0 {
		return fmt.Errorf("no bindings provided")
	}

	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(
		queueName, // name
		false,     // durable
		true,      // autoDelete
		true,      // exclusive
		false,     // noWait
		nil,       // args
	)
	if err != nil {
		return err
	}

	handlers := make(map[string]func([]byte) bool)
	for routingKey, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[routingKey] = handler
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			c.dispatch(handlers, d)
		}
		c.logger.Info("delivery channel closed", "queue", q.Name)
	}()

	return nil
}

func (c *Consumer) dispatch(handlers map[string]func([]byte) bool, d amqp.Delivery) {
	if c.appID != "" && d.AppId == c.appID {
		// Already applied in-process when it was published.
		d.Ack(false)
		return
	}
	handler, ok := handlers[d.RoutingKey]
	if !ok {
		c.logger.Warn("no handler for routing key; acknowledging to drop", "routing_key", d.RoutingKey)
		d.Ack(false)
		return
	}
	if handler(d.Body) {
		d.Ack(false)
	} else {
		c.logger.Warn("handler failed; re-queuing", "routing_key", d.RoutingKey)
		d.Nack(false, true)
	}
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
