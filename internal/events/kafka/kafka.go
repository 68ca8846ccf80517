// Package kafka carries market events over a Kafka topic, keyed by entity id.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"reyu/internal/events"
)

const routingKeyHeader = "routing_key"

// producer is the subset of *kgo.Client the publisher needs.
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Publisher produces asynchronously; delivery failures are logged by the promise.
type Publisher struct {
	client producer
	logger *slog.Logger
}

func NewPublisher(client producer, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(event.PartitionKey()),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: routingKeyHeader, Value: []byte(event.RoutingKey())},
		},
		Timestamp: event.OccurredAt,
	}
	// Produce outlives the request; detach from its cancellation.
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("kafka produce failed",
				"event_id", event.ID,
				"routing_key", event.RoutingKey(),
				"error", err,
			)
		}
	})
	return nil
}

// Consumer polls the topic and dispatches each record to a Handler.
type Consumer struct {
	client  *kgo.Client
	handler events.Handler
	logger  *slog.Logger
}

func NewConsumer(client *kgo.Client, handler events.Handler, logger *slog.Logger) *Consumer {
	return &Consumer{client: client, handler: handler, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})
		fetches.EachRecord(func(r *kgo.Record) {
			c.dispatch(ctx, r)
		})
	}
}

func (c *Consumer) dispatch(ctx context.Context, r *kgo.Record) {
	var event events.Event
	if err := json.Unmarshal(r.Value, &event); err != nil {
		c.logger.WarnContext(ctx, "discarding malformed event", "offset", r.Offset, "error", err)
		return
	}
	if err := c.handler.Handle(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "event handler failed", "event_id", event.ID, "error", err)
	}
}
