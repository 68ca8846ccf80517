// Package service answers the admin dashboard's read queries over the
// identity and market stores.
package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"reyu/internal/admin/types"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/requestcontext"
)

// DefaultDealStatus is listed when the caller gives no status: the queue of
// deals waiting on an admin.
const DefaultDealStatus = "disputed"

type UserStore interface {
	ListUsers(ctx context.Context, kycStatus, userStatus string) ([]*types.AdminUser, error)
	UserCounts(ctx context.Context) (types.UserCounts, error)
	ValidKYCStatus(s string) bool
	ValidUserStatus(s string) bool
}

type DealStore interface {
	ListDeals(ctx context.Context, status string) ([]*types.AdminDeal, error)
	DealCounts(ctx context.Context) (types.DealCounts, error)
	ActiveListings(ctx context.Context) (int, error)
	PendingSettlements(ctx context.Context) (int, error)
	ValidDealStatus(s string) bool
}

type Service struct {
	users  UserStore
	deals  DealStore
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(users UserStore, deals DealStore, opts ...Option) *Service {
	s := &Service{users: users, deals: deals, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListUsers filters the user directory by KYC and account status.
func (s *Service) ListUsers(ctx context.Context, kycStatus, userStatus string) ([]*types.AdminUser, error) {
	if kycStatus != "" && !s.users.ValidKYCStatus(kycStatus) {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown kyc_status")
	}
	if userStatus != "" && !s.users.ValidUserStatus(userStatus) {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown user_status")
	}
	users, err := s.users.ListUsers(ctx, kycStatus, userStatus)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

// ListDeals returns the deals in one status, least recently touched first.
func (s *Service) ListDeals(ctx context.Context, status string) ([]*types.AdminDeal, error) {
	if status == "" {
		status = DefaultDealStatus
	}
	if !s.deals.ValidDealStatus(status) {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown deal status")
	}
	deals, err := s.deals.ListDeals(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list deals")
	}
	return deals, nil
}

// Overview gathers the dashboard counters concurrently. Any failed query
// fails the whole overview.
func (s *Service) Overview(ctx context.Context) (*types.Overview, error) {
	out := &types.Overview{GeneratedAt: requestcontext.Now(ctx)}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		counts, err := s.users.UserCounts(gctx)
		out.Users = counts
		return err
	})
	g.Go(func() error {
		counts, err := s.deals.DealCounts(gctx)
		out.Deals = counts
		return err
	})
	g.Go(func() error {
		n, err := s.deals.ActiveListings(gctx)
		out.ActiveListings = n
		return err
	})
	g.Go(func() error {
		n, err := s.deals.PendingSettlements(gctx)
		out.PendingSettlements = n
		return err
	})

	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "admin overview failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build overview")
	}
	return out, nil
}
