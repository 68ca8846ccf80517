package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"reyu/internal/events"
	"reyu/internal/identity/models"
	"reyu/internal/identity/service/mocks"
	"reyu/internal/identity/store"
	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/sentinel"
)

// =============================================================================
// Identity Service Test Suite
// =============================================================================
// Justification: the identity service gates every trade. Tests cover KYC
// review effects on eligibility, reputation counters, event emission, and
// translation of store sentinels into domain errors.

type IdentityServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	publisher *mocks.MockEventPublisher
	users     *store.InMemory
	service   *Service
	ctx       context.Context
}

func TestIdentityServiceSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceSuite))
}

func (s *IdentityServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.publisher = mocks.NewMockEventPublisher(s.ctrl)
	s.users = store.NewInMemory()
	s.service = New(s.users,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPublisher(s.publisher),
	)
	s.ctx = context.Background()
}

func (s *IdentityServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *IdentityServiceSuite) register(email string) *models.User {
	u, err := s.service.RegisterUser(s.ctx, RegisterUserCommand{Email: email, DisplayName: "T"})
	s.Require().NoError(err)
	return u
}

func (s *IdentityServiceSuite) TestRegisterUser() {
	s.Run("new users cannot trade until reviewed", func() {
		u := s.register("new@reyu.test")
		s.False(models.CanTrade(u))
		s.Equal(models.RoleTrader, u.Role)
	})

	s.Run("keeps the provider's user id", func() {
		userID := id.NewUserID()
		u, err := s.service.RegisterUser(s.ctx, RegisterUserCommand{UserID: userID, Email: "sub@reyu.test"})
		s.Require().NoError(err)
		s.Equal(userID, u.ID)
	})

	s.Run("duplicate email is a conflict", func() {
		s.register("twice@reyu.test")
		_, err := s.service.RegisterUser(s.ctx, RegisterUserCommand{Email: "twice@reyu.test"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("missing email is a validation error", func() {
		_, err := s.service.RegisterUser(s.ctx, RegisterUserCommand{Email: "  "})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *IdentityServiceSuite) TestReviewKYC() {
	s.Run("approval makes the user eligible and notifies them", func() {
		u := s.register("approve@reyu.test")
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e events.Event) error {
				s.Equal(events.KindUser, e.Kind)
				s.Equal("kyc_updated", e.Name)
				s.Equal([]id.UserID{u.ID}, e.Recipients)
				return nil
			})

		updated, err := s.service.ReviewKYC(s.ctx, u.ID, models.KYCApproved)
		s.Require().NoError(err)
		s.True(models.CanTrade(updated))
	})

	s.Run("publish failure does not fail the review", func() {
		u := s.register("pubfail@reyu.test")
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		_, err := s.service.ReviewKYC(s.ctx, u.ID, models.KYCRejected)
		s.NoError(err)
	})

	s.Run("unknown status", func() {
		u := s.register("bad@reyu.test")
		_, err := s.service.ReviewKYC(s.ctx, u.ID, "maybe")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown user", func() {
		_, err := s.service.ReviewKYC(s.ctx, id.NewUserID(), models.KYCApproved)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *IdentityServiceSuite) TestSetUserStatus() {
	u := s.register("suspend@reyu.test")
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	_, err := s.service.ReviewKYC(s.ctx, u.ID, models.KYCApproved)
	s.Require().NoError(err)

	updated, err := s.service.SetUserStatus(s.ctx, u.ID, models.UserSuspended)
	s.Require().NoError(err)
	s.False(models.CanTrade(updated))
	s.True(dErrors.HasCode(models.EnsureCanTrade(updated), dErrors.CodeNotEligible))
}

func (s *IdentityServiceSuite) TestReputation() {
	u := s.register("rep@reyu.test")

	s.Require().NoError(s.service.RecordRating(s.ctx, u.ID, 5))
	s.Require().NoError(s.service.RecordRating(s.ctx, u.ID, 3))
	s.Require().NoError(s.service.RecordCompletedDeal(s.ctx, u.ID))

	got, err := s.service.GetUser(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(2, got.TotalRatings)
	s.InDelta(4.0, got.AverageRating, 0.001)
	s.Equal(1, got.CompletedDeals)

	s.True(dErrors.HasCode(s.service.RecordRating(s.ctx, u.ID, 6), dErrors.CodeValidation))
}

func (s *IdentityServiceSuite) TestStoreFailures() {
	mockStore := mocks.NewMockStore(s.ctrl)
	svc := New(mockStore, WithPublisher(s.publisher))
	userID := id.NewUserID()

	s.Run("not found maps to not_found", func() {
		mockStore.EXPECT().FindByID(gomock.Any(), userID).Return(nil, sentinel.ErrNotFound)
		_, err := svc.GetUser(s.ctx, userID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unexpected error maps to internal", func() {
		mockStore.EXPECT().FindByID(gomock.Any(), userID).Return(nil, errors.New("connection reset"))
		_, err := svc.GetUser(s.ctx, userID)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
