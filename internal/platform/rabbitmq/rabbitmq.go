// Package rabbitmq dials the broker and declares the market topic exchange.
package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection bundles the AMQP connection with a dedicated channel.
type Connection struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// Dial opens a connection and channel and declares exchange as a durable topic.
func Dial(url, exchange string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &Connection{Conn: conn, Channel: ch}, nil
}

// BindQueue declares a durable queue and binds it to exchange with key.
func (c *Connection) BindQueue(queue, key, exchange string) (amqp.Queue, error) {
	q, err := c.Channel.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := c.Channel.QueueBind(q.Name, key, exchange, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return q, nil
}

func (c *Connection) Close() error {
	_ = c.Channel.Close()
	return c.Conn.Close()
}
