// Package service turns committed market and account events into per-user
// notifications and serves each user's inbox.
package service

import (
	"context"
	"errors"
	"log/slog"

	"reyu/internal/events"
	"reyu/internal/notification/models"
	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/sentinel"
	"reyu/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

type Store interface {
	Save(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID id.UserID, unreadOnly bool) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle fans an event out to its recipients. The actor is not notified of
// their own action. Redelivered events are skipped per recipient, so the
// at-least-once transports can retry safely.
func (s *Service) Handle(ctx context.Context, e events.Event) error {
	tmpl, ok := models.Classify(e)
	if !ok {
		return nil
	}
	now := requestcontext.Now(ctx)
	var errs []error
	for _, userID := range e.Recipients {
		if userID.IsNil() || userID == e.ActorID {
			continue
		}
		err := s.store.Save(ctx, models.New(tmpl, userID, e, now))
		switch {
		case err == nil:
			s.logger.DebugContext(ctx, "notification stored",
				"event_id", e.ID,
				"routing_key", e.RoutingKey(),
				"user_id", userID.String(),
			)
		case errors.Is(err, sentinel.ErrDuplicate):
			s.logger.DebugContext(ctx, "notification already delivered",
				"event_id", e.ID,
				"user_id", userID.String(),
			)
		default:
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return dErrors.Wrap(errors.Join(errs...), dErrors.CodeInternal, "failed to store notifications")
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID id.UserID, unreadOnly bool) ([]*models.Notification, error) {
	out, err := s.store.ListByUser(ctx, userID, unreadOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notifications")
	}
	return out, nil
}

func (s *Service) MarkRead(ctx context.Context, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error) {
	n, err := s.store.MarkRead(ctx, userID, notificationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "notification not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark notification read")
	}
	return n, nil
}
