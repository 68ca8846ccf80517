// Package service implements the market core: the listing registry, the bid
// ledger and the deal state machine.
//
// Every mutation that touches more than one record runs inside
// Transactor.RunInTx keyed by the diamond the records belong to, so bid
// acceptance, listing cancellation and deal transitions for one stone are
// serialized and all-or-nothing. Events are published only after the
// transaction commits.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"reyu/internal/events"
	identity "reyu/internal/identity/models"
	"reyu/internal/market/metrics"
	"reyu/internal/market/models"
	"reyu/internal/payment"
	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/sentinel"
	"reyu/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Transactor runs fn atomically with respect to every other transaction on
// the same diamond.
type Transactor interface {
	RunInTx(ctx context.Context, key id.DiamondID, fn func(ctx context.Context) error) error
}

type DiamondStore interface {
	Create(ctx context.Context, d *models.Diamond) error
	FindByID(ctx context.Context, diamondID id.DiamondID) (*models.Diamond, error)
	ListByOwner(ctx context.Context, owner id.UserID) ([]*models.Diamond, error)
	UpdateStatus(ctx context.Context, diamondID id.DiamondID, from, to models.DiamondStatus, now time.Time) error
}

type ListingStore interface {
	Create(ctx context.Context, l *models.Listing) error
	FindByID(ctx context.Context, listingID id.ListingID) (*models.Listing, error)
	ListActive(ctx context.Context) ([]*models.Listing, error)
	UpdateStatus(ctx context.Context, listingID id.ListingID, from, to models.ListingStatus, now time.Time) error
	IncrementBidCount(ctx context.Context, listingID id.ListingID, now time.Time) error
}

type BidStore interface {
	Create(ctx context.Context, b *models.Bid) error
	FindByID(ctx context.Context, bidID id.BidID) (*models.Bid, error)
	ListByListing(ctx context.Context, listingID id.ListingID) ([]*models.Bid, error)
	ListByBidder(ctx context.Context, bidder id.UserID) ([]*models.Bid, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.Bid, error)
	UpdateStatus(ctx context.Context, bidID id.BidID, from, to models.BidStatus, now time.Time) error
}

type DealStore interface {
	Create(ctx context.Context, d *models.Deal) error
	FindByID(ctx context.Context, dealID id.DealID) (*models.Deal, error)
	ListByUser(ctx context.Context, user id.UserID) ([]*models.Deal, error)
	ListAwaitingPayment(ctx context.Context, cutoff time.Time) ([]*models.Deal, error)
	ListByStatus(ctx context.Context, status models.DealStatus) ([]*models.Deal, error)
	Stats(ctx context.Context) (models.DealStats, error)
	Update(ctx context.Context, d *models.Deal, fromStatus models.DealStatus, fromVersion int) error
	AppendTimeline(ctx context.Context, e models.TimelineEvent) (models.TimelineEvent, error)
	Timeline(ctx context.Context, dealID id.DealID) ([]models.TimelineEvent, error)
}

// SettlementStore is the escrow outbox. Create runs inside the deal
// transaction; Save records gateway attempts after commit.
type SettlementStore interface {
	Create(ctx context.Context, st *models.Settlement) error
	FindByDeal(ctx context.Context, dealID id.DealID) (*models.Settlement, error)
	ListPending(ctx context.Context) ([]*models.Settlement, error)
	Save(ctx context.Context, st *models.Settlement) error
}

type RatingStore interface {
	Create(ctx context.Context, r *models.Rating) error
	ListByDeal(ctx context.Context, dealID id.DealID) ([]*models.Rating, error)
}

// ViewCounter tracks listing views outside the transactional stores.
type ViewCounter interface {
	Incr(ctx context.Context, listingID id.ListingID) (int64, error)
	Count(ctx context.Context, listingID id.ListingID) (int64, error)
}

// UserDirectory is the market's view of identity.
type UserDirectory interface {
	FindUser(ctx context.Context, userID id.UserID) (*identity.User, error)
	RecordRating(ctx context.Context, userID id.UserID, score int) error
	RecordCompletedDeal(ctx context.Context, userID id.UserID) error
}

type PaymentGateway interface {
	Capture(ctx context.Context, req payment.CaptureRequest) (string, error)
	Release(ctx context.Context, ref string) error
	Refund(ctx context.Context, ref string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Stores groups the persistence ports.
type Stores struct {
	Diamonds    DiamondStore
	Listings    ListingStore
	Bids        BidStore
	Deals       DealStore
	Settlements SettlementStore
	Ratings     RatingStore
	Views       ViewCounter
}

const (
	defaultBidTTL         = 72 * time.Hour
	defaultPaymentTimeout = 48 * time.Hour
)

type Service struct {
	diamonds    DiamondStore
	listings    ListingStore
	bids        BidStore
	deals       DealStore
	settlements SettlementStore
	ratings     RatingStore
	views       ViewCounter

	tx        Transactor
	users     UserDirectory
	payments  PaymentGateway
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	bidTTL         time.Duration
	paymentTimeout time.Duration
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

func WithPayments(g PaymentGateway) Option {
	return func(s *Service) {
		s.payments = g
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBidTTL sets the expiry applied to bids placed without one.
func WithBidTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.bidTTL = d
		}
	}
}

// WithPaymentTimeout sets how long a deal may wait for payment before the
// sweeper cancels it.
func WithPaymentTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.paymentTimeout = d
		}
	}
}

func New(stores Stores, tx Transactor, users UserDirectory, opts ...Option) *Service {
	s := &Service{
		diamonds:       stores.Diamonds,
		listings:       stores.Listings,
		bids:           stores.Bids,
		deals:          stores.Deals,
		settlements:    stores.Settlements,
		ratings:        stores.Ratings,
		views:          stores.Views,
		tx:             tx,
		users:          users,
		payments:       payment.NewLedger(),
		publisher:      events.Discard{},
		logger:         slog.Default(),
		bidTTL:         defaultBidTTL,
		paymentTimeout: defaultPaymentTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ensureCanTrade applies the KYC/status gate. Users unknown to the directory
// have no trading profile and are treated as ineligible.
func (s *Service) ensureCanTrade(ctx context.Context, userID id.UserID) error {
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) || errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotEligible, "user has no trading profile")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return identity.EnsureCanTrade(user)
}

// translate maps store sentinels to domain errors. Domain errors raised inside
// a transaction pass through untouched.
func translate(err error, entity string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, entity+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeInvalidState, entity+" was modified concurrently")
	case errors.Is(err, sentinel.ErrDuplicate):
		return dErrors.New(dErrors.CodeConflict, entity+" already exists")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update "+entity)
}

// publish fans out committed events. Failures are logged and dropped.
func (s *Service) publish(ctx context.Context, evts ...events.Event) {
	for _, e := range evts {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.WarnContext(ctx, "failed to publish market event",
				"event_id", e.ID,
				"routing_key", e.RoutingKey(),
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
}

func validateMoney(amount decimal.Decimal, currency string) (models.Currency, error) {
	c, err := models.ParseCurrency(currency)
	if err != nil {
		return "", err
	}
	if err := models.ValidateAmount(amount); err != nil {
		return "", err
	}
	return c, nil
}
