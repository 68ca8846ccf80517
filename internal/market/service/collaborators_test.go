package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	identity "reyu/internal/identity/models"
	"reyu/internal/market/models"
	"reyu/internal/market/service/mocks"
	"reyu/internal/market/store"
	"reyu/internal/payment"
	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/sentinel"
	"reyu/pkg/requestcontext"
)

// Justification: failures of the user directory, view counter, publisher and
// payment gateway are hard to provoke through real implementations, so they
// are driven through mocks here.

func memoryStores(views ViewCounter) Stores {
	if views == nil {
		views = store.NewViewMemory()
	}
	return Stores{
		Diamonds:    store.NewDiamondMemory(),
		Listings:    store.NewListingMemory(),
		Bids:        store.NewBidMemory(),
		Deals:       store.NewDealMemory(),
		Settlements: store.NewSettlementMemory(),
		Ratings:     store.NewRatingMemory(),
		Views:       views,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeTrader(userID id.UserID) *identity.User {
	return &identity.User{ID: userID, KYCStatus: identity.KYCApproved, UserStatus: identity.UserActive}
}

func TestEnsureCanTrade_DirectoryFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserDirectory(ctrl)
	svc := New(memoryStores(nil), store.NewShardedTx(0), users, WithLogger(quietLogger()))
	ctx := context.Background()

	t.Run("missing user is not eligible", func(t *testing.T) {
		userID := id.NewUserID()
		users.EXPECT().FindUser(gomock.Any(), userID).Return(nil, dErrors.New(dErrors.CodeNotFound, "user not found"))

		err := svc.ensureCanTrade(ctx, userID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotEligible))
	})

	t.Run("store sentinel is not eligible", func(t *testing.T) {
		userID := id.NewUserID()
		users.EXPECT().FindUser(gomock.Any(), userID).Return(nil, sentinel.ErrNotFound)

		err := svc.ensureCanTrade(ctx, userID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotEligible))
	})

	t.Run("directory outage is internal", func(t *testing.T) {
		userID := id.NewUserID()
		users.EXPECT().FindUser(gomock.Any(), userID).Return(nil, errors.New("connection reset"))

		err := svc.ensureCanTrade(ctx, userID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
		assert.False(t, dErrors.HasCode(err, dErrors.CodeNotEligible))
	})

	t.Run("suspended user is not eligible", func(t *testing.T) {
		userID := id.NewUserID()
		u := activeTrader(userID)
		u.UserStatus = identity.UserSuspended
		users.EXPECT().FindUser(gomock.Any(), userID).Return(u, nil)

		err := svc.ensureCanTrade(ctx, userID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotEligible))
	})
}

func TestTranslate(t *testing.T) {
	domainErr := dErrors.New(dErrors.CodeSelfBid, "no")
	cases := []struct {
		name string
		in   error
		want dErrors.Code
	}{
		{"domain errors pass through", domainErr, dErrors.CodeSelfBid},
		{"not found", sentinel.ErrNotFound, dErrors.CodeNotFound},
		{"cas conflict", sentinel.ErrConflict, dErrors.CodeInvalidState},
		{"duplicate", sentinel.ErrDuplicate, dErrors.CodeConflict},
		{"deadline", context.DeadlineExceeded, dErrors.CodeTimeout},
		{"unknown", errors.New("disk full"), dErrors.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, dErrors.CodeOf(translate(tc.in, "bid")))
		})
	}
	assert.NoError(t, translate(nil, "bid"))
}

// fixture wires a service whose trading users are all eligible and returns a
// listing with one pending bid.
type fixture struct {
	svc     *Service
	stores  Stores
	seller  id.UserID
	buyer   id.UserID
	listing *models.Listing
	bid     *models.Bid
}

func newFixture(t *testing.T, ctrl *gomock.Controller, views ViewCounter, opts ...Option) fixture {
	t.Helper()
	users := mocks.NewMockUserDirectory(ctrl)
	users.EXPECT().FindUser(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, userID id.UserID) (*identity.User, error) {
			return activeTrader(userID), nil
		}).AnyTimes()
	users.EXPECT().RecordCompletedDeal(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	stores := memoryStores(views)
	svc := New(stores, store.NewShardedTx(0), users, append([]Option{WithLogger(quietLogger())}, opts...)...)
	ctx := context.Background()
	seller, buyer := id.NewUserID(), id.NewUserID()

	d, err := svc.RegisterDiamond(ctx, seller, diamondSpec())
	require.NoError(t, err)
	l, err := svc.CreateListing(ctx, seller, CreateListingCommand{
		DiamondID: d.ID, AskingPrice: decimal.NewFromInt(500), Currency: "USD",
	})
	require.NoError(t, err)
	b, err := svc.PlaceBid(ctx, buyer, l.ID, PlaceBidCommand{Amount: decimal.NewFromInt(450), Currency: "USD"})
	require.NoError(t, err)
	return fixture{svc: svc, stores: stores, seller: seller, buyer: buyer, listing: l, bid: b}
}

func TestPublishFailuresDoNotFailOperations(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockEventPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down")).MinTimes(1)

	f := newFixture(t, ctrl, nil, WithPublisher(publisher))
	d, err := f.svc.AcceptBid(context.Background(), f.seller, f.bid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DealCreated, d.Status)
}

func TestRecordView_CounterFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	views := mocks.NewMockViewCounter(ctrl)
	views.EXPECT().Incr(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("redis timeout"))
	views.EXPECT().Count(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("redis timeout")).AnyTimes()

	f := newFixture(t, ctrl, views)
	n, err := f.svc.RecordView(context.Background(), f.listing.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.svc.GetListing(context.Background(), f.listing.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ViewCount)
}

func TestCapturePayment_GatewayErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockPaymentGateway(ctrl)
	f := newFixture(t, ctrl, nil, WithPayments(gateway))
	ctx := context.Background()

	deal, err := f.svc.AcceptBid(ctx, f.seller, f.bid.ID)
	require.NoError(t, err)

	t.Run("unavailable gateway leaves the deal untouched", func(t *testing.T) {
		gateway.EXPECT().Capture(gomock.Any(), gomock.Any()).Return("", payment.ErrUnavailable)

		_, err := f.svc.CapturePayment(ctx, models.Actor{ID: f.buyer}, deal.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePaymentFailed))
		assert.ErrorIs(t, err, payment.ErrUnavailable)

		stored, err := f.stores.Deals.FindByID(ctx, deal.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DealCreated, stored.Status)
		assert.Equal(t, 1, stored.Version)
	})

	t.Run("capture request carries the deal terms", func(t *testing.T) {
		gateway.EXPECT().Capture(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req payment.CaptureRequest) (string, error) {
				assert.Equal(t, deal.ID, req.DealID)
				assert.Equal(t, f.buyer, req.Payer)
				assert.Equal(t, f.seller, req.Payee)
				assert.True(t, req.Amount.Equal(decimal.NewFromInt(450)))
				assert.Equal(t, "USD", req.Currency)
				assert.Equal(t, "capture:"+deal.ID.String(), req.IdempotencyKey)
				return "esc_1", nil
			})

		got, err := f.svc.CapturePayment(ctx, models.Actor{ID: f.buyer}, deal.ID)
		require.NoError(t, err)
		assert.Equal(t, "esc_1", got.PaymentRef)
		assert.Equal(t, 3, got.Version)
	})

	t.Run("failed release completes the deal and queues the retry", func(t *testing.T) {
		_, err := f.svc.ShipDeal(ctx, models.Actor{ID: f.seller}, deal.ID, models.ShippingInfo{Carrier: "UPS", TrackingNumber: "1Z"})
		require.NoError(t, err)
		_, err = f.svc.ConfirmDelivery(ctx, models.SystemActor(), deal.ID)
		require.NoError(t, err)

		gateway.EXPECT().Release(gomock.Any(), "esc_1").Return(payment.ErrUnavailable)
		got, err := f.svc.CompleteDeal(ctx, models.Actor{ID: f.buyer}, deal.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DealCompleted, got.Status)
		diamond, err := f.stores.Diamonds.FindByID(ctx, deal.DiamondID)
		require.NoError(t, err)
		assert.Equal(t, models.DiamondCompleted, diamond.Status)

		st, err := f.stores.Settlements.FindByDeal(ctx, deal.ID)
		require.NoError(t, err)
		assert.True(t, st.Pending())
		assert.Equal(t, 1, st.Attempts)
		assert.Contains(t, st.LastError, "unavailable")

		gateway.EXPECT().Release(gomock.Any(), "esc_1").Return(payment.ErrUnavailable)
		n, err := f.svc.SettlePending(ctx, time.Now())
		require.NoError(t, err)
		assert.Zero(t, n)

		gateway.EXPECT().Release(gomock.Any(), "esc_1").Return(nil)
		n, err = f.svc.SettlePending(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		st, err = f.stores.Settlements.FindByDeal(ctx, deal.ID)
		require.NoError(t, err)
		assert.False(t, st.Pending())
		assert.Equal(t, 3, st.Attempts)
		assert.Empty(t, st.LastError)

		n, err = f.svc.SettlePending(ctx, time.Now())
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestCapturePayment_RejectedBeforeGateway(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockPaymentGateway(ctrl)
	f := newFixture(t, ctrl, nil, WithPayments(gateway))
	ctx := context.Background()

	deal, err := f.svc.AcceptBid(ctx, f.seller, f.bid.ID)
	require.NoError(t, err)

	// No Capture expectation: the gateway must not be reached.
	_, err = f.svc.CapturePayment(ctx, models.Actor{ID: f.seller}, deal.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = f.svc.CancelDeal(ctx, models.Actor{ID: f.buyer}, deal.ID, "")
	require.NoError(t, err)
	_, err = f.svc.CapturePayment(ctx, models.Actor{ID: f.buyer}, deal.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func TestSweeper_RetriesSettlements(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockPaymentGateway(ctrl)
	f := newFixture(t, ctrl, nil, WithPayments(gateway))
	ctx := context.Background()

	deal, err := f.svc.AcceptBid(ctx, f.seller, f.bid.ID)
	require.NoError(t, err)
	gateway.EXPECT().Capture(gomock.Any(), gomock.Any()).Return("esc_9", nil)
	_, err = f.svc.CapturePayment(ctx, models.Actor{ID: f.buyer}, deal.ID)
	require.NoError(t, err)
	_, err = f.svc.RaiseDispute(ctx, models.Actor{ID: f.buyer}, deal.ID, "no contact", "")
	require.NoError(t, err)

	gateway.EXPECT().Refund(gomock.Any(), "esc_9").Return(payment.ErrUnavailable)
	got, err := f.svc.ResolveDispute(ctx, models.Actor{ID: id.NewUserID(), Admin: true}, deal.ID, models.DealCancelled, "refund")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, got.PaymentStatus)

	gateway.EXPECT().Refund(gomock.Any(), "esc_9").Return(nil)
	NewSweeper(f.svc, time.Minute, quietLogger()).SweepOnce(ctx)

	st, err := f.stores.Settlements.FindByDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.False(t, st.Pending())
	assert.Equal(t, models.SettlementRefund, st.Action)
}

func TestCapturePayment_OrphanedHoldIsRefunded(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockPaymentGateway(ctrl)
	deals := mocks.NewMockDealStore(ctrl)
	users := mocks.NewMockUserDirectory(ctrl)

	buyer, seller := id.NewUserID(), id.NewUserID()
	deal := &models.Deal{
		ID:          id.NewDealID(),
		DiamondID:   id.NewDiamondID(),
		BuyerID:     buyer,
		SellerID:    seller,
		FinalAmount: decimal.NewFromInt(10),
		Currency:    models.USD,
		Status:      models.DealPaymentPending,
		Version:     2,
	}
	snapshot := func(context.Context, id.DealID) (*models.Deal, error) {
		cp := *deal
		return &cp, nil
	}

	deals.EXPECT().FindByID(gomock.Any(), deal.ID).DoAndReturn(snapshot).AnyTimes()
	gateway.EXPECT().Capture(gomock.Any(), gomock.Any()).Return("esc_orphan", nil)
	deals.EXPECT().Update(gomock.Any(), gomock.Any(), models.DealPaymentPending, 2).Return(sentinel.ErrConflict)
	gateway.EXPECT().Refund(gomock.Any(), "esc_orphan").Return(nil)

	stores := memoryStores(nil)
	stores.Deals = deals
	svc := New(stores, store.NewShardedTx(time.Second), users, WithLogger(quietLogger()), WithPayments(gateway))

	ctx := requestcontext.WithTime(context.Background(), time.Now())
	_, err := svc.CapturePayment(ctx, models.Actor{ID: buyer}, deal.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

// A concurrent capture of the same deal shares the hold through the
// idempotency key. When that capture committed, the loser keeps the hold.
func TestCapturePayment_SharedHoldIsKept(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockPaymentGateway(ctrl)
	deals := mocks.NewMockDealStore(ctrl)
	users := mocks.NewMockUserDirectory(ctrl)

	buyer := id.NewUserID()
	deal := &models.Deal{
		ID:          id.NewDealID(),
		DiamondID:   id.NewDiamondID(),
		BuyerID:     buyer,
		SellerID:    id.NewUserID(),
		FinalAmount: decimal.NewFromInt(10),
		Currency:    models.USD,
		Status:      models.DealPaymentPending,
		Version:     2,
	}
	deals.EXPECT().FindByID(gomock.Any(), deal.ID).DoAndReturn(func(context.Context, id.DealID) (*models.Deal, error) {
		cp := *deal
		return &cp, nil
	}).AnyTimes()
	gateway.EXPECT().Capture(gomock.Any(), gomock.Any()).Return("esc_shared", nil)
	deals.EXPECT().Update(gomock.Any(), gomock.Any(), models.DealPaymentPending, 2).DoAndReturn(
		func(context.Context, *models.Deal, models.DealStatus, int) error {
			deal.Status = models.DealInEscrow
			deal.PaymentRef = "esc_shared"
			deal.Version = 3
			return sentinel.ErrConflict
		})

	stores := memoryStores(nil)
	stores.Deals = deals
	svc := New(stores, store.NewShardedTx(time.Second), users, WithLogger(quietLogger()), WithPayments(gateway))

	ctx := requestcontext.WithTime(context.Background(), time.Now())
	_, err := svc.CapturePayment(ctx, models.Actor{ID: buyer}, deal.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}
