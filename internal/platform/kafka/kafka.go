// Package kafka builds franz-go clients for the market event topic.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"reyu/internal/platform/config"
)

// NewProducer returns a client that produces to cfg.KafkaTopic by default.
func NewProducer(ctx context.Context, cfg config.Events) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.DefaultProduceTopic(cfg.KafkaTopic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping kafka: %w", err)
	}
	return client, nil
}

// NewConsumer returns a group consumer on cfg.KafkaTopic.
func NewConsumer(cfg config.Events, group string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(cfg.KafkaTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return client, nil
}

// EnsureTopic creates cfg.KafkaTopic with cfg.KafkaPartitions partitions.
// An existing topic is left as is.
func EnsureTopic(ctx context.Context, client *kgo.Client, cfg config.Events) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, cfg.KafkaPartitions, cfg.KafkaReplication, nil, cfg.KafkaTopic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", cfg.KafkaTopic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}
