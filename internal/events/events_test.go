package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (h *recordingHandler) Handle(_ context.Context, e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEvent_Keys(t *testing.T) {
	e := New(KindDeal, "in_escrow", "deal-1", time.Now())
	assert.Equal(t, "deal.in_escrow", e.RoutingKey())
	assert.Equal(t, "deal-1", e.PartitionKey())
	assert.NotEmpty(t, e.ID)
}

func TestChannelPublisher_DropsWhenFull(t *testing.T) {
	p := NewChannelPublisher(1, quietLogger())
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, New(KindBid, "placed", "b1", time.Now())))
	err := p.Publish(ctx, New(KindBid, "placed", "b2", time.Now()))

	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, int64(1), p.Dropped())
}

func TestWorker_DeliversAndSurvivesHandlerErrors(t *testing.T) {
	p := NewChannelPublisher(4, quietLogger())
	h := &recordingHandler{err: errors.New("downstream failed")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewWorker(h, p.Inbox(), quietLogger()).Run(ctx) }()

	require.NoError(t, p.Publish(ctx, New(KindDeal, "created", "d1", time.Now())))
	require.NoError(t, p.Publish(ctx, New(KindDeal, "payment_pending", "d1", time.Now())))

	assert.Eventually(t, func() bool { return h.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
