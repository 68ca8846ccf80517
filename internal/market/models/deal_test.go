package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDeal(t *testing.T) *Deal {
	t.Helper()
	seller, buyer := id.NewUserID(), id.NewUserID()
	listing := &Listing{ID: id.NewListingID(), DiamondID: id.NewDiamondID(), SellerID: seller, Currency: USD}
	bid := &Bid{ID: id.NewBidID(), ListingID: listing.ID, BidderID: buyer, Amount: decimal.NewFromInt(900), Currency: USD}
	d, ev := NewDeal(id.NewDealID(), listing, bid, seller, testNow)
	require.Equal(t, EventCreated, ev.Event)
	require.Equal(t, DealCreated, ev.Status)
	return d
}

func TestDealStatus_TransitionTable(t *testing.T) {
	legal := map[DealStatus][]DealStatus{
		DealCreated:        {DealPaymentPending, DealCancelled},
		DealPaymentPending: {DealInEscrow, DealCancelled},
		DealInEscrow:       {DealShipped, DealDisputed},
		DealShipped:        {DealDelivered, DealDisputed},
		DealDelivered:      {DealCompleted, DealDisputed},
		DealDisputed:       {DealInEscrow, DealCompleted, DealCancelled},
	}
	for _, from := range AllDealStatuses {
		for _, to := range AllDealStatuses {
			want := false
			for _, allowed := range legal[from] {
				if allowed == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, DealCompleted.IsTerminal())
	assert.True(t, DealCancelled.IsTerminal())
	assert.False(t, DealDisputed.IsTerminal())
}

func TestNewDeal(t *testing.T) {
	d := newTestDeal(t)
	assert.Equal(t, DealCreated, d.Status)
	assert.Equal(t, PaymentPending, d.PaymentStatus)
	assert.Equal(t, 1, d.Version)
	assert.Equal(t, PartyBuyer, d.PartyOf(d.BuyerID))
	assert.Equal(t, PartySeller, d.PartyOf(d.SellerID))
	assert.Equal(t, Party(""), d.PartyOf(id.NewUserID()))
}

func TestDeal_CanTransition(t *testing.T) {
	d := newTestDeal(t)
	buyer := Actor{ID: d.BuyerID}
	seller := Actor{ID: d.SellerID}
	admin := Actor{ID: id.NewUserID(), Admin: true}
	outsider := Actor{ID: id.NewUserID()}

	at := func(status DealStatus) *Deal {
		cp := *d
		cp.Status = status
		return &cp
	}
	code := func(err error) dErrors.Code {
		if err == nil {
			return ""
		}
		return dErrors.CodeOf(err)
	}

	cases := []struct {
		name  string
		from  DealStatus
		to    DealStatus
		actor Actor
		want  dErrors.Code
	}{
		{"buyer initiates payment", DealCreated, DealPaymentPending, buyer, ""},
		{"seller cannot initiate payment", DealCreated, DealPaymentPending, seller, dErrors.CodeUnauthorized},
		{"system captures payment", DealPaymentPending, DealInEscrow, SystemActor(), ""},
		{"seller ships", DealInEscrow, DealShipped, seller, ""},
		{"buyer cannot ship", DealInEscrow, DealShipped, buyer, dErrors.CodeUnauthorized},
		{"carrier confirms delivery", DealShipped, DealDelivered, SystemActor(), ""},
		{"buyer completes", DealDelivered, DealCompleted, buyer, ""},
		{"seller cannot complete", DealDelivered, DealCompleted, seller, dErrors.CodeUnauthorized},
		{"either party disputes", DealShipped, DealDisputed, seller, ""},
		{"buyer disputes", DealDelivered, DealDisputed, buyer, ""},
		{"no dispute before escrow", DealCreated, DealDisputed, buyer, dErrors.CodeInvalidState},
		{"admin resolves", DealDisputed, DealCancelled, admin, ""},
		{"party cannot resolve", DealDisputed, DealCompleted, buyer, dErrors.CodeUnauthorized},
		{"admin cannot drive normal flow", DealInEscrow, DealShipped, admin, dErrors.CodeUnauthorized},
		{"outsider rejected before state", DealCompleted, DealShipped, outsider, dErrors.CodeUnauthorized},
		{"terminal deal is frozen", DealCompleted, DealDisputed, buyer, dErrors.CodeInvalidState},
		{"no cancel after escrow", DealInEscrow, DealCancelled, buyer, dErrors.CodeInvalidState},
		{"system times out payment", DealPaymentPending, DealCancelled, SystemActor(), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := at(tc.from).CanTransition(tc.to, tc.actor)
			assert.Equal(t, tc.want, code(err), "err=%v", err)
		})
	}
}

func TestDeal_ApplyHappyPath(t *testing.T) {
	d := newTestDeal(t)
	buyer := Actor{ID: d.BuyerID}
	seller := Actor{ID: d.SellerID}

	history := []TimelineEvent{{Status: DealCreated, Sequence: 1}}
	record := func(ev TimelineEvent) {
		ev.Sequence = len(history) + 1
		history = append(history, ev)
	}

	record(d.ApplyPaymentInitiated(buyer, testNow))
	record(d.ApplyPaymentCaptured("esc_1", buyer, testNow))
	assert.Equal(t, PaymentInEscrow, d.PaymentStatus)
	assert.Equal(t, "esc_1", d.PaymentRef)

	record(d.ApplyShipped(ShippingInfo{Carrier: " FedEx ", TrackingNumber: "T1"}, seller, testNow))
	require.NotNil(t, d.Shipping)
	assert.Equal(t, "FedEx", d.Shipping.Carrier)
	assert.Equal(t, testNow, d.Shipping.ShippedAt)

	record(d.ApplyDelivered(buyer, testNow.Add(time.Hour)))
	require.NotNil(t, d.Shipping.DeliveredAt)

	record(d.ApplyCompleted(buyer, testNow.Add(2*time.Hour)))
	assert.Equal(t, PaymentReleased, d.PaymentStatus)
	require.NotNil(t, d.CompletedAt)

	assert.Equal(t, 6, d.Version)
	status, err := ReplayStatus(history)
	require.NoError(t, err)
	assert.Equal(t, d.Status, status)
}

func TestDeal_DisputeAndResolution(t *testing.T) {
	admin := Actor{ID: id.NewUserID(), Admin: true}

	t.Run("cancelled outcome refunds", func(t *testing.T) {
		d := newTestDeal(t)
		d.Status = DealInEscrow
		ev := d.ApplyDisputed("wrong stone", "", Actor{ID: d.SellerID}, testNow)
		assert.Equal(t, EventDisputeRaised, ev.Event)
		require.NotNil(t, d.Dispute)
		assert.Equal(t, PartySeller, d.Dispute.RaisedBy)
		assert.Equal(t, DisputeOpen, d.Dispute.Status)

		ev = d.ApplyResolution(DealCancelled, "refund", admin, testNow)
		assert.Equal(t, EventDisputeResolved, ev.Event)
		assert.Equal(t, DealCancelled, ev.Status)
		assert.Equal(t, PaymentRefunded, d.PaymentStatus)
		assert.Equal(t, DisputeResolved, d.Dispute.Status)
		require.NotNil(t, d.Dispute.ResolvedBy)
		assert.Equal(t, admin.ID, *d.Dispute.ResolvedBy)
	})

	t.Run("completed outcome releases", func(t *testing.T) {
		d := newTestDeal(t)
		d.Status = DealDisputed
		d.ApplyResolution(DealCompleted, "", admin, testNow)
		assert.Equal(t, PaymentReleased, d.PaymentStatus)
		assert.NotNil(t, d.CompletedAt)
	})

	assert.True(t, ValidResolution(DealInEscrow))
	assert.True(t, ValidResolution(DealCompleted))
	assert.True(t, ValidResolution(DealCancelled))
	assert.False(t, ValidResolution(DealShipped))
}

func TestValidateShipping(t *testing.T) {
	assert.NoError(t, ValidateShipping(ShippingInfo{Carrier: "UPS", TrackingNumber: "1Z"}))
	assert.True(t, dErrors.HasCode(ValidateShipping(ShippingInfo{Carrier: "UPS"}), dErrors.CodeValidation))
	assert.True(t, dErrors.HasCode(ValidateShipping(ShippingInfo{TrackingNumber: "1Z"}), dErrors.CodeValidation))
}

func TestReplayStatus(t *testing.T) {
	ev := func(seq int, status DealStatus) TimelineEvent {
		return TimelineEvent{Sequence: seq, Status: status}
	}

	_, err := ReplayStatus(nil)
	assert.Error(t, err)

	_, err = ReplayStatus([]TimelineEvent{ev(1, DealPaymentPending)})
	assert.Error(t, err)

	_, err = ReplayStatus([]TimelineEvent{ev(1, DealCreated), ev(3, DealPaymentPending)})
	assert.Error(t, err, "sequence gap")

	_, err = ReplayStatus([]TimelineEvent{ev(1, DealCreated), ev(2, DealShipped)})
	assert.Error(t, err, "illegal step")

	status, err := ReplayStatus([]TimelineEvent{
		ev(1, DealCreated), ev(2, DealPaymentPending), ev(3, DealInEscrow),
		ev(4, DealDisputed), ev(5, DealInEscrow), ev(6, DealShipped),
	})
	require.NoError(t, err)
	assert.Equal(t, DealShipped, status)
}

func TestNewRating(t *testing.T) {
	d := newTestDeal(t)

	_, err := NewRating(d, d.BuyerID, 5, "", testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))

	d.Status = DealCompleted
	_, err = NewRating(d, id.NewUserID(), 5, "", testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	for _, score := range []int{0, 6, -1} {
		_, err = NewRating(d, d.BuyerID, score, "", testNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "score=%d", score)
	}

	r, err := NewRating(d, d.SellerID, 3, "  ok  ", testNow)
	require.NoError(t, err)
	assert.Equal(t, d.BuyerID, r.RatedUserID)
	assert.Equal(t, "ok", r.Feedback)
}
