package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"reyu/internal/market/models"
	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	tx       *ShardedTx
	diamonds *DiamondMemory
	listings *ListingMemory
	bids     *BidMemory
	deals    *DealMemory
	ratings  *RatingMemory
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.tx = NewShardedTx(time.Second)
	s.diamonds = NewDiamondMemory()
	s.listings = NewListingMemory()
	s.bids = NewBidMemory()
	s.deals = NewDealMemory()
	s.ratings = NewRatingMemory()
}

func (s *MemoryStoreSuite) newDiamond(owner id.UserID) *models.Diamond {
	d, err := models.NewDiamond(id.NewDiamondID(), owner, models.DiamondSpec{
		Shape:             "oval",
		CaratWeight:       decimal.RequireFromString("0.90"),
		Color:             "F",
		Clarity:           "VVS2",
		Cut:               "Very Good",
		Lab:               "IGI",
		CertificateNumber: uuid.NewString(),
	}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.diamonds.Create(s.ctx, d))
	return d
}

func (s *MemoryStoreSuite) newListing(d *models.Diamond) *models.Listing {
	l, err := models.NewListing(id.NewListingID(), d, decimal.NewFromInt(1000), models.USD, "", nil, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.listings.Create(s.ctx, l))
	return l
}

func (s *MemoryStoreSuite) newBid(l *models.Listing, expiresAt time.Time) *models.Bid {
	b, err := models.NewBid(id.NewBidID(), l, id.NewUserID(), decimal.NewFromInt(900), models.USD, "", expiresAt, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.bids.Create(s.ctx, b))
	return b
}

func (s *MemoryStoreSuite) newDeal() *models.Deal {
	d := s.newDiamond(id.NewUserID())
	l := s.newListing(d)
	b := s.newBid(l, s.now.Add(time.Hour))
	deal, first := models.NewDeal(id.NewDealID(), l, b, l.SellerID, s.now)
	s.Require().NoError(s.deals.Create(s.ctx, deal))
	_, err := s.deals.AppendTimeline(s.ctx, first)
	s.Require().NoError(err)
	return deal
}

func (s *MemoryStoreSuite) TestDiamonds() {
	s.Run("certificate is unique per lab", func() {
		d := s.newDiamond(id.NewUserID())
		dup := *d
		dup.ID = id.NewDiamondID()
		s.ErrorIs(s.diamonds.Create(s.ctx, &dup), sentinel.ErrDuplicate)

		dup.Lab = "GIA"
		s.NoError(s.diamonds.Create(s.ctx, &dup))
	})

	s.Run("status update is compare-and-swap", func() {
		d := s.newDiamond(id.NewUserID())
		s.Require().NoError(s.diamonds.UpdateStatus(s.ctx, d.ID, models.DiamondAvailable, models.DiamondListed, s.now))
		s.ErrorIs(s.diamonds.UpdateStatus(s.ctx, d.ID, models.DiamondAvailable, models.DiamondListed, s.now), sentinel.ErrConflict)
		s.ErrorIs(s.diamonds.UpdateStatus(s.ctx, id.NewDiamondID(), models.DiamondAvailable, models.DiamondListed, s.now), sentinel.ErrNotFound)
	})

	s.Run("lists by owner", func() {
		owner := id.NewUserID()
		s.newDiamond(owner)
		s.newDiamond(owner)
		s.newDiamond(id.NewUserID())
		got, err := s.diamonds.ListByOwner(s.ctx, owner)
		s.Require().NoError(err)
		s.Len(got, 2)
	})

	s.Run("reads are copies", func() {
		d := s.newDiamond(id.NewUserID())
		got, err := s.diamonds.FindByID(s.ctx, d.ID)
		s.Require().NoError(err)
		got.Status = models.DiamondCompleted
		again, err := s.diamonds.FindByID(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Equal(models.DiamondAvailable, again.Status)
	})
}

func (s *MemoryStoreSuite) TestListings() {
	s.Run("one open listing per diamond", func() {
		d := s.newDiamond(id.NewUserID())
		first := s.newListing(d)
		second, err := models.NewListing(id.NewListingID(), d, decimal.NewFromInt(5), models.USD, "", nil, s.now)
		s.Require().NoError(err)
		s.ErrorIs(s.listings.Create(s.ctx, second), sentinel.ErrDuplicate)

		s.Require().NoError(s.listings.UpdateStatus(s.ctx, first.ID, models.ListingActive, models.ListingCancelled, s.now))
		s.NoError(s.listings.Create(s.ctx, second))
	})

	s.Run("bid count increments", func() {
		l := s.newListing(s.newDiamond(id.NewUserID()))
		for range 3 {
			s.Require().NoError(s.listings.IncrementBidCount(s.ctx, l.ID, s.now))
		}
		got, err := s.listings.FindByID(s.ctx, l.ID)
		s.Require().NoError(err)
		s.Equal(3, got.BidCount)
	})

	s.Run("active listings exclude locked ones", func() {
		l := s.newListing(s.newDiamond(id.NewUserID()))
		s.Require().NoError(s.listings.UpdateStatus(s.ctx, l.ID, models.ListingActive, models.ListingLocked, s.now))
		active, err := s.listings.ListActive(s.ctx)
		s.Require().NoError(err)
		for _, a := range active {
			s.NotEqual(l.ID, a.ID)
		}
	})
}

func (s *MemoryStoreSuite) TestBids() {
	l := s.newListing(s.newDiamond(id.NewUserID()))
	soon := s.newBid(l, s.now.Add(time.Minute))
	later := s.newBid(l, s.now.Add(time.Hour))

	s.Run("lists expired pending bids", func() {
		due, err := s.bids.ListExpired(s.ctx, s.now.Add(time.Minute))
		s.Require().NoError(err)
		s.Require().Len(due, 1)
		s.Equal(soon.ID, due[0].ID)
	})

	s.Run("cas on status", func() {
		s.Require().NoError(s.bids.UpdateStatus(s.ctx, later.ID, models.BidPending, models.BidRejected, s.now))
		s.ErrorIs(s.bids.UpdateStatus(s.ctx, later.ID, models.BidPending, models.BidAccepted, s.now), sentinel.ErrConflict)
	})

	s.Run("lists by listing and bidder", func() {
		byListing, err := s.bids.ListByListing(s.ctx, l.ID)
		s.Require().NoError(err)
		s.Len(byListing, 2)
		byBidder, err := s.bids.ListByBidder(s.ctx, soon.BidderID)
		s.Require().NoError(err)
		s.Len(byBidder, 1)
	})
}

func (s *MemoryStoreSuite) TestDeals() {
	s.Run("one deal per bid", func() {
		deal := s.newDeal()
		dup := *deal
		dup.ID = id.NewDealID()
		s.ErrorIs(s.deals.Create(s.ctx, &dup), sentinel.ErrDuplicate)
	})

	s.Run("update checks status and version", func() {
		deal := s.newDeal()
		stale := *deal
		deal.ApplyPaymentInitiated(models.Actor{ID: deal.BuyerID}, s.now)
		s.Require().NoError(s.deals.Update(s.ctx, deal, models.DealCreated, 1))

		stale.ApplyCancelled("late", models.Actor{ID: stale.BuyerID}, s.now)
		s.ErrorIs(s.deals.Update(s.ctx, &stale, models.DealCreated, 1), sentinel.ErrConflict)

		got, err := s.deals.FindByID(s.ctx, deal.ID)
		s.Require().NoError(err)
		s.Equal(models.DealPaymentPending, got.Status)
		s.Equal(2, got.Version)
	})

	s.Run("timeline sequence is contiguous", func() {
		deal := s.newDeal()
		ev := deal.ApplyPaymentInitiated(models.Actor{ID: deal.BuyerID}, s.now)
		stored, err := s.deals.AppendTimeline(s.ctx, ev)
		s.Require().NoError(err)
		s.Equal(2, stored.Sequence)

		timeline, err := s.deals.Timeline(s.ctx, deal.ID)
		s.Require().NoError(err)
		s.Len(timeline, 2)
		status, err := models.ReplayStatus(timeline)
		s.Require().NoError(err)
		s.Equal(models.DealPaymentPending, status)

		_, err = s.deals.Timeline(s.ctx, id.NewDealID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("awaiting payment honours the cutoff", func() {
		fresh := NewDealMemory()
		s.deals = fresh
		deal := s.newDeal()
		due, err := fresh.ListAwaitingPayment(s.ctx, s.now)
		s.Require().NoError(err)
		s.Empty(due)
		due, err = fresh.ListAwaitingPayment(s.ctx, s.now.Add(time.Second))
		s.Require().NoError(err)
		s.Require().Len(due, 1)
		s.Equal(deal.ID, due[0].ID)
	})

	s.Run("lists by status and counts", func() {
		s.deals = NewDealMemory()
		waiting := s.newDeal()
		moved := s.newDeal()
		moved.ApplyPaymentInitiated(models.Actor{ID: moved.BuyerID}, s.now)
		s.Require().NoError(s.deals.Update(s.ctx, moved, models.DealCreated, 1))

		created, err := s.deals.ListByStatus(s.ctx, models.DealCreated)
		s.Require().NoError(err)
		s.Require().Len(created, 1)
		s.Equal(waiting.ID, created[0].ID)

		stats, err := s.deals.Stats(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, stats.Total)
		s.Equal(1, stats.ByStatus[models.DealCreated])
		s.Equal(1, stats.ByStatus[models.DealPaymentPending])
		s.Zero(stats.ByStatus[models.DealCompleted])
		s.Empty(stats.CompletedVolume)
	})
}

func (s *MemoryStoreSuite) TestSettlements() {
	settlements := NewSettlementMemory()
	deal := s.newDeal()
	deal.PaymentRef = "esc_1"

	s.Run("one settlement per deal", func() {
		st := models.NewSettlement(deal, models.SettlementRelease, s.now)
		s.Require().NoError(settlements.Create(s.ctx, st))
		s.ErrorIs(settlements.Create(s.ctx, st), sentinel.ErrDuplicate)
	})

	s.Run("failed attempts stay pending", func() {
		st, err := settlements.FindByDeal(s.ctx, deal.ID)
		s.Require().NoError(err)
		st.RecordAttempt(errors.New("gateway down"))
		s.Require().NoError(settlements.Save(s.ctx, st))

		pending, err := settlements.ListPending(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(pending, 1)
		s.Equal(1, pending[0].Attempts)
		s.Equal("gateway down", pending[0].LastError)
	})

	s.Run("a settled record is never reopened", func() {
		st, err := settlements.FindByDeal(s.ctx, deal.ID)
		s.Require().NoError(err)
		st.MarkSettled(s.now)
		s.Require().NoError(settlements.Save(s.ctx, st))

		st.SettledAt = nil
		s.Require().NoError(settlements.Save(s.ctx, st))
		got, err := settlements.FindByDeal(s.ctx, deal.ID)
		s.Require().NoError(err)
		s.False(got.Pending())
		s.Equal(2, got.Attempts)

		pending, err := settlements.ListPending(s.ctx)
		s.Require().NoError(err)
		s.Empty(pending)
	})

	s.Run("rolled back with its transaction", func() {
		other := s.newDeal()
		boom := errors.New("boom")
		err := s.tx.RunInTx(s.ctx, other.DiamondID, func(ctx context.Context) error {
			s.Require().NoError(settlements.Create(ctx, models.NewSettlement(other, models.SettlementRefund, s.now)))
			return boom
		})
		s.ErrorIs(err, boom)
		_, err = settlements.FindByDeal(s.ctx, other.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown deal", func() {
		_, err := settlements.FindByDeal(s.ctx, id.NewDealID())
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.ErrorIs(settlements.Save(s.ctx, &models.Settlement{DealID: id.NewDealID()}), sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestRatings() {
	r := &models.Rating{ID: id.NewRatingID(), DealID: id.NewDealID(), RaterID: id.NewUserID(), Score: 4, CreatedAt: s.now}
	s.Require().NoError(s.ratings.Create(s.ctx, r))
	again := *r
	again.ID = id.NewRatingID()
	s.ErrorIs(s.ratings.Create(s.ctx, &again), sentinel.ErrDuplicate)

	got, err := s.ratings.ListByDeal(s.ctx, r.DealID)
	s.Require().NoError(err)
	s.Len(got, 1)
}

// A failed transaction leaves no trace in any memory store.
func (s *MemoryStoreSuite) TestShardedTxRollback() {
	d := s.newDiamond(id.NewUserID())
	l := s.newListing(d)
	b := s.newBid(l, s.now.Add(time.Hour))
	boom := errors.New("boom")

	err := s.tx.RunInTx(s.ctx, d.ID, func(ctx context.Context) error {
		s.Require().NoError(s.diamonds.UpdateStatus(ctx, d.ID, models.DiamondAvailable, models.DiamondListed, s.now))
		s.Require().NoError(s.listings.IncrementBidCount(ctx, l.ID, s.now))
		s.Require().NoError(s.bids.UpdateStatus(ctx, b.ID, models.BidPending, models.BidAccepted, s.now))
		deal, ev := models.NewDeal(id.NewDealID(), l, b, l.SellerID, s.now)
		s.Require().NoError(s.deals.Create(ctx, deal))
		_, err := s.deals.AppendTimeline(ctx, ev)
		s.Require().NoError(err)
		return boom
	})
	s.ErrorIs(err, boom)

	gotDiamond, err := s.diamonds.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(models.DiamondAvailable, gotDiamond.Status)
	gotListing, err := s.listings.FindByID(s.ctx, l.ID)
	s.Require().NoError(err)
	s.Zero(gotListing.BidCount)
	gotBid, err := s.bids.FindByID(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(models.BidPending, gotBid.Status)
	deals, err := s.deals.ListByUser(s.ctx, l.SellerID)
	s.Require().NoError(err)
	s.Empty(deals)
}

func (s *MemoryStoreSuite) TestShardedTxCommit() {
	d := s.newDiamond(id.NewUserID())
	err := s.tx.RunInTx(s.ctx, d.ID, func(ctx context.Context) error {
		return s.diamonds.UpdateStatus(ctx, d.ID, models.DiamondAvailable, models.DiamondListed, s.now)
	})
	s.Require().NoError(err)
	got, err := s.diamonds.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(models.DiamondListed, got.Status)
}

func (s *MemoryStoreSuite) TestShardedTxCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	called := false
	err := s.tx.RunInTx(ctx, id.NewDiamondID(), func(context.Context) error {
		called = true
		return nil
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.False(called)
}

// Transactions on one diamond never overlap.
func (s *MemoryStoreSuite) TestShardedTxSerializesPerDiamond() {
	key := id.NewDiamondID()
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		inside int
		maxIn  int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.tx.RunInTx(s.ctx, key, func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxIn {
					maxIn = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	s.Equal(1, maxIn)
}

func (s *MemoryStoreSuite) TestViewMemory() {
	views := NewViewMemory()
	listingID := id.NewListingID()

	n, err := views.Count(s.ctx, listingID)
	s.Require().NoError(err)
	s.Zero(n)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = views.Incr(s.ctx, listingID)
		}()
	}
	wg.Wait()
	n, err = views.Count(s.ctx, listingID)
	s.Require().NoError(err)
	s.EqualValues(50, n)
}
