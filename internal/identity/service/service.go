// Package service exposes the identity read model to the market and the admin
// KYC review surface.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"reyu/internal/events"
	"reyu/internal/identity/models"
	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/sentinel"
	"reyu/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

type Store interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	Update(ctx context.Context, userID id.UserID, fn func(*models.User) error) (*models.User, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Service owns user lookups, KYC/status changes and reputation counters.
type Service struct {
	users     Store
	publisher EventPublisher
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func New(users Store, opts ...Option) *Service {
	s := &Service{
		users:     users,
		publisher: events.Discard{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterUserCommand bootstraps the local read model for a user the identity
// provider already knows.
type RegisterUserCommand struct {
	UserID      id.UserID
	Email       string
	DisplayName string
	Role        models.Role
}

func (s *Service) RegisterUser(ctx context.Context, cmd RegisterUserCommand) (*models.User, error) {
	userID := cmd.UserID
	if userID.IsNil() {
		userID = id.NewUserID()
	}
	user, err := models.NewUser(userID, strings.TrimSpace(cmd.Email), strings.TrimSpace(cmd.DisplayName), cmd.Role, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return nil, dErrors.New(dErrors.CodeConflict, "user already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register user")
	}
	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// FindUser satisfies the market's user directory.
func (s *Service) FindUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.GetUser(ctx, userID)
}

// ReviewKYC records the outcome of the external KYC review.
func (s *Service) ReviewKYC(ctx context.Context, userID id.UserID, status models.KYCStatus) (*models.User, error) {
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown kyc status")
	}
	now := requestcontext.Now(ctx)
	user, err := s.update(ctx, userID, func(u *models.User) error {
		u.ApplyKYCDecision(status, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "kyc status updated",
		"user_id", userID.String(),
		"kyc_status", string(status),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publishAccountChange(ctx, user, "kyc_updated", "KYC status changed to "+string(status))
	return user, nil
}

func (s *Service) SetUserStatus(ctx context.Context, userID id.UserID, status models.UserStatus) (*models.User, error) {
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown user status")
	}
	now := requestcontext.Now(ctx)
	user, err := s.update(ctx, userID, func(u *models.User) error {
		u.ApplyStatus(status, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user status updated",
		"user_id", userID.String(),
		"user_status", string(status),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publishAccountChange(ctx, user, "status_updated", "Account status changed to "+string(status))
	return user, nil
}

// RecordRating folds a deal rating into the rated user's reputation.
func (s *Service) RecordRating(ctx context.Context, userID id.UserID, score int) error {
	if score < 1 || score > 5 {
		return dErrors.New(dErrors.CodeValidation, "score must be between 1 and 5")
	}
	now := requestcontext.Now(ctx)
	_, err := s.update(ctx, userID, func(u *models.User) error {
		u.ApplyRating(score, now)
		return nil
	})
	return err
}

func (s *Service) RecordCompletedDeal(ctx context.Context, userID id.UserID) error {
	now := requestcontext.Now(ctx)
	_, err := s.update(ctx, userID, func(u *models.User) error {
		u.ApplyCompletedDeal(now)
		return nil
	})
	return err
}

func (s *Service) update(ctx context.Context, userID id.UserID, fn func(*models.User) error) (*models.User, error) {
	user, err := s.users.Update(ctx, userID, fn)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}
	return user, nil
}

func (s *Service) publishAccountChange(ctx context.Context, user *models.User, name, description string) {
	event := events.New(events.KindUser, name, user.ID.String(), user.UpdatedAt)
	event.ActorID = requestcontext.UserID(ctx)
	event.Recipients = []id.UserID{user.ID}
	event.Description = description
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish account event",
			"user_id", user.ID.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
