//go:build integration

package kafka

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reyu/internal/events"
	"reyu/internal/platform/config"
	platformkafka "reyu/internal/platform/kafka"
	"reyu/pkg/testutil/containers"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []events.Event
}

func (h *recordingHandler) Handle(_ context.Context, e events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *recordingHandler) first() events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[0]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRoundTrip(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.Events{
		KafkaBrokers:     []string{rp.Broker},
		KafkaTopic:       "reyu.market.test",
		KafkaPartitions:  3,
		KafkaReplication: 1,
	}
	producer, err := platformkafka.NewProducer(ctx, cfg)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, platformkafka.EnsureTopic(ctx, producer, cfg))
	require.NoError(t, platformkafka.EnsureTopic(ctx, producer, cfg), "existing topic is fine")

	client, err := platformkafka.NewConsumer(cfg, "reyu-test")
	require.NoError(t, err)
	defer client.Close()

	h := &recordingHandler{}
	go func() { _ = NewConsumer(client, h, quietLogger()).Run(ctx) }()

	e := events.New(events.KindDeal, "shipped", "deal-1", time.Now().UTC())
	require.NoError(t, NewPublisher(producer, quietLogger()).Publish(ctx, e))
	require.NoError(t, producer.Flush(ctx))

	assert.Eventually(t, func() bool { return h.count() == 1 }, 20*time.Second, 100*time.Millisecond)
	got := h.first()
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "deal.shipped", got.RoutingKey())
}
