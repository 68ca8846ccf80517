package events

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrBufferFull is returned when the in-process queue cannot take an event.
var ErrBufferFull = errors.New("event buffer full")

// Publisher hands committed events to a transport. Callers treat errors as
// best-effort: they are logged, never propagated to the request.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Handler consumes events, whatever transport delivered them.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// ChannelPublisher queues events for an in-process Worker. Publish never blocks.
type ChannelPublisher struct {
	ch      chan Event
	dropped atomic.Int64
	logger  *slog.Logger
}

func NewChannelPublisher(size int, logger *slog.Logger) *ChannelPublisher {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelPublisher{ch: make(chan Event, size), logger: logger}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event Event) error {
	select {
	case p.ch <- event:
		return nil
	default:
		p.dropped.Add(1)
		p.logger.WarnContext(ctx, "event dropped, buffer full",
			"event_id", event.ID,
			"routing_key", event.RoutingKey(),
		)
		return ErrBufferFull
	}
}

// Inbox is the receive side consumed by a Worker.
func (p *ChannelPublisher) Inbox() <-chan Event {
	return p.ch
}

func (p *ChannelPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Discard drops every event. Used when no consumer is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
