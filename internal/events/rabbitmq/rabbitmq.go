// Package rabbitmq carries market events over a RabbitMQ topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"reyu/internal/events"
)

// publishChannel is the subset of *amqp.Channel the publisher needs.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher publishes events with routing key "<kind>.<name>".
type Publisher struct {
	ch       publishChannel
	exchange string
}

func NewPublisher(ch publishChannel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		event.RoutingKey(),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to exchange %s: %w", p.exchange, err)
	}
	return nil
}

// Consumer reads a bound queue and dispatches to a Handler.
type Consumer struct {
	ch      *amqp.Channel
	queue   string
	handler events.Handler
	logger  *slog.Logger
}

func NewConsumer(ch *amqp.Channel, queue string, handler events.Handler, logger *slog.Logger) *Consumer {
	return &Consumer{ch: ch, queue: queue, handler: handler, logger: logger}
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	var event events.Event
	if err := json.Unmarshal(d.Body, &event); err != nil {
		c.logger.WarnContext(ctx, "discarding malformed event", "routing_key", d.RoutingKey, "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := c.handler.Handle(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "event handler failed", "event_id", event.ID, "error", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}
