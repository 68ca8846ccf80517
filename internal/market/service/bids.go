package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"reyu/internal/events"
	"reyu/internal/market/models"
	"reyu/internal/platform/tracing"
	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/sentinel"
	"reyu/pkg/requestcontext"
)

type PlaceBidCommand struct {
	Amount   decimal.Decimal
	Currency string
	Note     string
	// ExpiresAt defaults to now plus the configured bid TTL when zero.
	ExpiresAt time.Time
}

// PlaceBid records a pending offer against an active listing.
func (s *Service) PlaceBid(ctx context.Context, bidder id.UserID, listingID id.ListingID, cmd PlaceBidCommand) (bid *models.Bid, err error) {
	ctx, span := tracing.Start(ctx, "market.PlaceBid",
		attribute.String("listing_id", listingID.String()))
	defer func() { tracing.End(span, err) }()

	if err := s.ensureCanTrade(ctx, bidder); err != nil {
		return nil, err
	}
	current, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, translate(err, "listing")
	}

	now := requestcontext.Now(ctx)
	expiresAt := cmd.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.bidTTL)
	}
	currency, err := models.ParseCurrency(cmd.Currency)
	if err != nil {
		return nil, err
	}

	var listing *models.Listing
	err = s.tx.RunInTx(ctx, current.DiamondID, func(ctx context.Context) error {
		l, err := s.listings.FindByID(ctx, listingID)
		if err != nil {
			return translate(err, "listing")
		}
		if err := l.EnsureAcceptingBids(now); err != nil {
			return err
		}
		if l.SellerID == bidder {
			return dErrors.New(dErrors.CodeSelfBid, "sellers cannot bid on their own listing")
		}
		b, err := models.NewBid(id.NewBidID(), l, bidder, cmd.Amount, currency, cmd.Note, expiresAt, now)
		if err != nil {
			return err
		}
		if err := s.bids.Create(ctx, b); err != nil {
			return translate(err, "bid")
		}
		if err := s.listings.IncrementBidCount(ctx, listingID, now); err != nil {
			return translate(err, "listing")
		}
		bid, listing = b, l
		return nil
	})
	if err != nil {
		return nil, translate(err, "diamond")
	}

	s.metrics.IncBid(string(models.BidPending))
	s.logger.InfoContext(ctx, "bid placed",
		"bid_id", bid.ID.String(),
		"listing_id", listingID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publish(ctx, bidEvent(bid, "placed", bidder, listing.SellerID,
		"New bid of "+bid.Amount.StringFixed(2)+" "+string(bid.Currency), now))
	return bid, nil
}

// AcceptBid turns a pending bid into a deal. A listing produces at most one
// accepted bid ever, so a listing reopened after a cancelled deal takes bids
// but cannot accept another. Within one transaction the bid is accepted, the
// other pending bids on the listing are rejected, the listing and diamond are
// locked and the deal is created with its first timeline event. Of two concurrent accepts on one listing exactly one wins; the other
// sees invalid_state.
//
// A bid found past its expiry is marked expired in its own committed
// transaction and the call fails with invalid_state.
func (s *Service) AcceptBid(ctx context.Context, actor id.UserID, bidID id.BidID) (deal *models.Deal, err error) {
	ctx, span := tracing.Start(ctx, "market.AcceptBid",
		attribute.String("bid_id", bidID.String()))
	defer func() { tracing.End(span, err) }()

	current, err := s.bids.FindByID(ctx, bidID)
	if err != nil {
		return nil, translate(err, "bid")
	}
	listing, err := s.listings.FindByID(ctx, current.ListingID)
	if err != nil {
		return nil, translate(err, "listing")
	}
	if listing.SellerID != actor {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the seller can accept a bid")
	}
	if err := s.ensureCanTrade(ctx, actor); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var (
		expired  *models.Bid
		accepted *models.Bid
		rejected []*models.Bid
		created  models.TimelineEvent
	)
	err = s.tx.RunInTx(ctx, listing.DiamondID, func(ctx context.Context) error {
		b, err := s.bids.FindByID(ctx, bidID)
		if err != nil {
			return translate(err, "bid")
		}
		if b.IsExpiredAt(now) {
			if err := s.bids.UpdateStatus(ctx, b.ID, models.BidPending, models.BidExpired, now); err != nil {
				return translate(err, "bid")
			}
			expired = b
			return nil
		}
		if err := b.CanAccept(now); err != nil {
			return err
		}
		l, err := s.listings.FindByID(ctx, b.ListingID)
		if err != nil {
			return translate(err, "listing")
		}
		if err := l.EnsureAcceptingBids(now); err != nil {
			return err
		}

		siblings, err := s.bids.ListByListing(ctx, l.ID)
		if err != nil {
			return translate(err, "bid")
		}
		for _, sib := range siblings {
			if sib.Status == models.BidAccepted {
				return dErrors.New(dErrors.CodeInvalidState, "listing already has an accepted bid")
			}
		}
		if err := s.bids.UpdateStatus(ctx, b.ID, models.BidPending, models.BidAccepted, now); err != nil {
			return translate(err, "bid")
		}
		for _, sib := range siblings {
			if sib.ID == b.ID || sib.Status != models.BidPending {
				continue
			}
			if err := s.bids.UpdateStatus(ctx, sib.ID, models.BidPending, models.BidRejected, now); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					continue
				}
				return translate(err, "bid")
			}
			rejected = append(rejected, sib)
		}
		if err := s.listings.UpdateStatus(ctx, l.ID, models.ListingActive, models.ListingLocked, now); err != nil {
			return translate(err, "listing")
		}
		if err := s.diamonds.UpdateStatus(ctx, l.DiamondID, models.DiamondListed, models.DiamondLocked, now); err != nil {
			return translate(err, "diamond")
		}

		d, ev := models.NewDeal(id.NewDealID(), l, b, actor, now)
		if err := s.deals.Create(ctx, d); err != nil {
			return translate(err, "deal")
		}
		stored, err := s.deals.AppendTimeline(ctx, ev)
		if err != nil {
			return translate(err, "deal")
		}
		deal, accepted, created = d, b, stored
		return nil
	})
	if err != nil {
		err = translate(err, "diamond")
		if dErrors.HasCode(err, dErrors.CodeInvalidState) {
			s.metrics.IncAcceptConflict()
		}
		return nil, err
	}
	if expired != nil {
		s.metrics.IncBid(string(models.BidExpired))
		s.publish(ctx, bidEvent(expired, "expired", id.UserID{}, expired.BidderID, "Bid expired", now))
		return nil, dErrors.New(dErrors.CodeInvalidState, "bid has expired")
	}

	s.metrics.IncBid(string(models.BidAccepted))
	s.metrics.AddBids(string(models.BidRejected), len(rejected))
	s.metrics.IncDealTransition(string(models.DealCreated))
	s.logger.InfoContext(ctx, "bid accepted",
		"bid_id", bidID.String(),
		"deal_id", deal.ID.String(),
		"rejected_bids", len(rejected),
		"request_id", requestcontext.RequestID(ctx),
	)

	evts := []events.Event{
		bidEvent(accepted, "accepted", actor, accepted.BidderID, "Your bid was accepted", now),
		dealEvent(deal, created),
	}
	for _, r := range rejected {
		evts = append(evts, bidEvent(r, "rejected", actor, r.BidderID, "Another bid was accepted", now))
	}
	s.publish(ctx, evts...)
	return deal, nil
}

// RejectBid lets the seller decline one pending bid.
func (s *Service) RejectBid(ctx context.Context, actor id.UserID, bidID id.BidID) error {
	bid, listing, err := s.loadBid(ctx, bidID)
	if err != nil {
		return err
	}
	if listing.SellerID != actor {
		return dErrors.New(dErrors.CodeUnauthorized, "only the seller can reject a bid")
	}
	if err := s.settleBid(ctx, listing.DiamondID, bid, models.BidRejected); err != nil {
		return err
	}
	s.publish(ctx, bidEvent(bid, "rejected", actor, bid.BidderID, "Your bid was declined", requestcontext.Now(ctx)))
	return nil
}

// CancelBid lets the bidder withdraw a pending bid.
func (s *Service) CancelBid(ctx context.Context, actor id.UserID, bidID id.BidID) error {
	bid, listing, err := s.loadBid(ctx, bidID)
	if err != nil {
		return err
	}
	if err := bid.CanCancel(actor); err != nil {
		return err
	}
	if err := s.settleBid(ctx, listing.DiamondID, bid, models.BidCancelled); err != nil {
		return err
	}
	s.publish(ctx, bidEvent(bid, "cancelled", actor, listing.SellerID, "Bid withdrawn by bidder", requestcontext.Now(ctx)))
	return nil
}

func (s *Service) loadBid(ctx context.Context, bidID id.BidID) (*models.Bid, *models.Listing, error) {
	bid, err := s.bids.FindByID(ctx, bidID)
	if err != nil {
		return nil, nil, translate(err, "bid")
	}
	listing, err := s.listings.FindByID(ctx, bid.ListingID)
	if err != nil {
		return nil, nil, translate(err, "listing")
	}
	return bid, listing, nil
}

// settleBid moves a pending bid to a terminal status under the diamond lock
// so it cannot interleave with an acceptance.
func (s *Service) settleBid(ctx context.Context, diamondID id.DiamondID, bid *models.Bid, to models.BidStatus) error {
	if bid.Status != models.BidPending {
		return dErrors.New(dErrors.CodeInvalidState, "bid is not pending")
	}
	now := requestcontext.Now(ctx)
	err := s.tx.RunInTx(ctx, diamondID, func(ctx context.Context) error {
		if err := s.bids.UpdateStatus(ctx, bid.ID, models.BidPending, to, now); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeInvalidState, "bid is not pending")
			}
			return translate(err, "bid")
		}
		return nil
	})
	if err != nil {
		return translate(err, "diamond")
	}
	bid.Apply(to, now)
	s.metrics.IncBid(string(to))
	return nil
}

// ExpireBids is the eager expiry sweep. Bids that moved on concurrently are
// skipped. It returns how many bids were expired.
func (s *Service) ExpireBids(ctx context.Context, now time.Time) (int, error) {
	due, err := s.bids.ListExpired(ctx, now)
	if err != nil {
		return 0, translate(err, "bid")
	}
	expired := 0
	for _, b := range due {
		if err := s.bids.UpdateStatus(ctx, b.ID, models.BidPending, models.BidExpired, now); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				continue
			}
			return expired, translate(err, "bid")
		}
		expired++
		s.publish(ctx, bidEvent(b, "expired", id.UserID{}, b.BidderID, "Bid expired", now))
	}
	s.metrics.AddBids(string(models.BidExpired), expired)
	return expired, nil
}

// ListBidsForListing returns every bid to the seller and only the caller's
// own bids to anyone else.
func (s *Service) ListBidsForListing(ctx context.Context, actor id.UserID, listingID id.ListingID) ([]*models.Bid, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, translate(err, "listing")
	}
	bids, err := s.bids.ListByListing(ctx, listingID)
	if err != nil {
		return nil, translate(err, "bid")
	}
	if listing.SellerID == actor {
		return bids, nil
	}
	own := make([]*models.Bid, 0)
	for _, b := range bids {
		if b.BidderID == actor {
			own = append(own, b)
		}
	}
	return own, nil
}

func (s *Service) ListBidsByBidder(ctx context.Context, bidder id.UserID) ([]*models.Bid, error) {
	bids, err := s.bids.ListByBidder(ctx, bidder)
	if err != nil {
		return nil, translate(err, "bid")
	}
	return bids, nil
}

func bidEvent(b *models.Bid, name string, actor, recipient id.UserID, description string, now time.Time) events.Event {
	e := events.New(events.KindBid, name, b.ID.String(), now)
	e.BidID = b.ID
	e.ListingID = b.ListingID
	e.ActorID = actor
	e.Recipients = []id.UserID{recipient}
	e.Description = description
	return e
}
