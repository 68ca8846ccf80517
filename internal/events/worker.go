package events

import (
	"context"
	"log/slog"
)

// Worker consumes events from a channel and hands them to a Handler. Handler
// failures are logged and the worker moves on.
type Worker struct {
	handler Handler
	inbox   <-chan Event
	logger  *slog.Logger
}

func NewWorker(handler Handler, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{handler: handler, inbox: inbox, logger: logger}
}

// Run blocks until ctx is cancelled or the inbox is closed.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.handler.Handle(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "event handler failed",
					"event_id", event.ID,
					"routing_key", event.RoutingKey(),
					"error", err,
				)
			}
		}
	}
}
