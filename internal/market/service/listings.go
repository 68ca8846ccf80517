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

// RegisterDiamond adds a graded stone to the owner's inventory as available.
func (s *Service) RegisterDiamond(ctx context.Context, owner id.UserID, spec models.DiamondSpec) (*models.Diamond, error) {
	if _, err := s.users.FindUser(ctx, owner); err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeNotEligible, "user has no trading profile")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	diamond, err := models.NewDiamond(id.NewDiamondID(), owner, spec, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.diamonds.Create(ctx, diamond); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return nil, dErrors.New(dErrors.CodeConflict, "certificate already registered")
		}
		return nil, translate(err, "diamond")
	}
	s.logger.InfoContext(ctx, "diamond registered",
		"diamond_id", diamond.ID.String(),
		"owner_id", owner.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return diamond, nil
}

func (s *Service) ListDiamonds(ctx context.Context, owner id.UserID) ([]*models.Diamond, error) {
	out, err := s.diamonds.ListByOwner(ctx, owner)
	if err != nil {
		return nil, translate(err, "diamond")
	}
	return out, nil
}

type CreateListingCommand struct {
	DiamondID   id.DiamondID
	AskingPrice decimal.Decimal
	Currency    string
	Description string
	ExpiresAt   *time.Time
}

// CreateListing puts an available diamond on the market. The seller's
// eligibility is checked before the diamond so an ineligible seller always
// gets not_eligible.
func (s *Service) CreateListing(ctx context.Context, seller id.UserID, cmd CreateListingCommand) (listing *models.Listing, err error) {
	ctx, span := tracing.Start(ctx, "market.CreateListing",
		attribute.String("diamond_id", cmd.DiamondID.String()))
	defer func() { tracing.End(span, err) }()

	currency, err := validateMoney(cmd.AskingPrice, cmd.Currency)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCanTrade(ctx, seller); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, cmd.DiamondID, func(ctx context.Context) error {
		diamond, err := s.diamonds.FindByID(ctx, cmd.DiamondID)
		if err != nil {
			return translate(err, "diamond")
		}
		if err := diamond.CanList(seller); err != nil {
			return err
		}
		l, err := models.NewListing(id.NewListingID(), diamond, cmd.AskingPrice, currency, cmd.Description, cmd.ExpiresAt, now)
		if err != nil {
			return err
		}
		if err := s.diamonds.UpdateStatus(ctx, diamond.ID, models.DiamondAvailable, models.DiamondListed, now); err != nil {
			return translate(err, "diamond")
		}
		if err := s.listings.Create(ctx, l); err != nil {
			if errors.Is(err, sentinel.ErrDuplicate) {
				return dErrors.New(dErrors.CodeInvalidState, "diamond already has an open listing")
			}
			return translate(err, "listing")
		}
		listing = l
		return nil
	})
	if err != nil {
		return nil, translate(err, "diamond")
	}

	s.metrics.IncListingCreated()
	s.logger.InfoContext(ctx, "listing created",
		"listing_id", listing.ID.String(),
		"diamond_id", listing.DiamondID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	e := events.New(events.KindListing, "created", listing.ID.String(), now)
	e.ListingID = listing.ID
	e.ActorID = seller
	s.publish(ctx, e)
	return listing, nil
}

// CancelListing withdraws an active listing: its pending bids are cancelled
// and the diamond returns to available.
func (s *Service) CancelListing(ctx context.Context, actor id.UserID, listingID id.ListingID) (err error) {
	ctx, span := tracing.Start(ctx, "market.CancelListing",
		attribute.String("listing_id", listingID.String()))
	defer func() { tracing.End(span, err) }()

	current, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return translate(err, "listing")
	}
	if err := current.CanCancel(actor); err != nil {
		return err
	}

	now := requestcontext.Now(ctx)
	var cancelled []*models.Bid
	err = s.tx.RunInTx(ctx, current.DiamondID, func(ctx context.Context) error {
		cancelled = nil
		listing, err := s.listings.FindByID(ctx, listingID)
		if err != nil {
			return translate(err, "listing")
		}
		if err := listing.CanCancel(actor); err != nil {
			return err
		}
		bids, err := s.bids.ListByListing(ctx, listingID)
		if err != nil {
			return translate(err, "bid")
		}
		for _, b := range bids {
			if b.Status != models.BidPending {
				continue
			}
			if err := s.bids.UpdateStatus(ctx, b.ID, models.BidPending, models.BidCancelled, now); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					continue
				}
				return translate(err, "bid")
			}
			cancelled = append(cancelled, b)
		}
		if err := s.listings.UpdateStatus(ctx, listingID, models.ListingActive, models.ListingCancelled, now); err != nil {
			return translate(err, "listing")
		}
		diamond, err := s.diamonds.FindByID(ctx, listing.DiamondID)
		if err != nil {
			return translate(err, "diamond")
		}
		// A listing reopened after a cancelled deal already has its diamond
		// back in available.
		if diamond.Status == models.DiamondListed {
			if err := s.diamonds.UpdateStatus(ctx, diamond.ID, models.DiamondListed, models.DiamondAvailable, now); err != nil {
				return translate(err, "diamond")
			}
		}
		return nil
	})
	if err != nil {
		return translate(err, "diamond")
	}

	s.metrics.AddBids(string(models.BidCancelled), len(cancelled))
	s.logger.InfoContext(ctx, "listing cancelled",
		"listing_id", listingID.String(),
		"cancelled_bids", len(cancelled),
		"request_id", requestcontext.RequestID(ctx),
	)
	evts := make([]events.Event, 0, len(cancelled)+1)
	le := events.New(events.KindListing, "cancelled", listingID.String(), now)
	le.ListingID = listingID
	le.ActorID = actor
	evts = append(evts, le)
	for _, b := range cancelled {
		evts = append(evts, bidEvent(b, "cancelled", actor, b.BidderID, "Listing withdrawn by seller", now))
	}
	s.publish(ctx, evts...)
	return nil
}

// RecordView bumps the listing's view counter and returns the new count.
// Counter failures are logged and do not fail the request.
func (s *Service) RecordView(ctx context.Context, listingID id.ListingID) (int64, error) {
	if _, err := s.listings.FindByID(ctx, listingID); err != nil {
		return 0, translate(err, "listing")
	}
	n, err := s.views.Incr(ctx, listingID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record listing view",
			"listing_id", listingID.String(),
			"error", err,
		)
		return 0, nil
	}
	return n, nil
}

func (s *Service) GetListing(ctx context.Context, listingID id.ListingID) (*models.Listing, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, translate(err, "listing")
	}
	s.withViews(ctx, listing)
	return listing, nil
}

// ListActiveListings returns listings still accepting bids.
func (s *Service) ListActiveListings(ctx context.Context) ([]*models.Listing, error) {
	all, err := s.listings.ListActive(ctx)
	if err != nil {
		return nil, translate(err, "listing")
	}
	now := requestcontext.Now(ctx)
	out := make([]*models.Listing, 0, len(all))
	for _, l := range all {
		if !l.IsAcceptingBids(now) {
			continue
		}
		s.withViews(ctx, l)
		out = append(out, l)
	}
	return out, nil
}

func (s *Service) withViews(ctx context.Context, l *models.Listing) {
	n, err := s.views.Count(ctx, l.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read listing views",
			"listing_id", l.ID.String(),
			"error", err,
		)
		return
	}
	if n > l.ViewCount {
		l.ViewCount = n
	}
}
