package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"reyu/internal/events"
	"reyu/internal/market/models"
	"reyu/internal/payment"
	"reyu/internal/platform/tracing"
	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/requestcontext"
)

// step is one deal transition. check runs after the state machine and actor
// checks pass and before anything is written; settle runs after the deal and
// its timeline entry are stored and moves the listing and diamond. A non-empty
// escrow queues a settlement in the same transaction; the gateway is called
// only after commit.
type step struct {
	to     models.DealStatus
	escrow models.SettlementAction
	check  func(ctx context.Context, d *models.Deal) error
	apply  func(d *models.Deal, now time.Time) models.TimelineEvent
	settle func(ctx context.Context, d *models.Deal, now time.Time) error
}

// transitionResult is what a committed transition hands to post-commit work.
type transitionResult struct {
	deal       *models.Deal
	timeline   []models.TimelineEvent
	settlement *models.Settlement
}

// precheck runs the state machine and actor checks for steps against a copy
// of d, so a request that cannot succeed never reaches the payment gateway.
// The transaction checks again against the locked state.
func precheck(d *models.Deal, actor models.Actor, steps ...step) error {
	cp := *d
	for _, st := range steps {
		if err := cp.CanTransition(st.to, actor); err != nil {
			return err
		}
		cp.Status = st.to
	}
	return nil
}

// transition runs steps against one deal in a single transaction. Each step
// re-validates against the state left by the previous one, bumps the version
// with a compare-and-swap write and appends exactly one timeline event.
func (s *Service) transition(ctx context.Context, op string, actor models.Actor, dealID id.DealID, steps ...step) (res transitionResult, err error) {
	ctx, span := tracing.Start(ctx, "market."+op, attribute.String("deal_id", dealID.String()))
	defer func() { tracing.End(span, err) }()

	current, err := s.deals.FindByID(ctx, dealID)
	if err != nil {
		return res, translate(err, "deal")
	}
	if !current.CanView(actor) {
		return res, dErrors.New(dErrors.CodeUnauthorized, "actor is not a party to this deal")
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, current.DiamondID, func(ctx context.Context) error {
		res = transitionResult{}
		d, err := s.deals.FindByID(ctx, dealID)
		if err != nil {
			return translate(err, "deal")
		}
		for _, st := range steps {
			if err := d.CanTransition(st.to, actor); err != nil {
				return err
			}
			if st.check != nil {
				if err := st.check(ctx, d); err != nil {
					return err
				}
			}
			fromStatus, fromVersion := d.Status, d.Version
			ev := st.apply(d, now)
			if err := s.deals.Update(ctx, d, fromStatus, fromVersion); err != nil {
				return translate(err, "deal")
			}
			stored, err := s.deals.AppendTimeline(ctx, ev)
			if err != nil {
				return translate(err, "deal")
			}
			if st.settle != nil {
				if err := st.settle(ctx, d, now); err != nil {
					return err
				}
			}
			if st.escrow != "" {
				queued := models.NewSettlement(d, st.escrow, now)
				if err := s.settlements.Create(ctx, queued); err != nil {
					return translate(err, "settlement")
				}
				res.settlement = queued
			}
			res.timeline = append(res.timeline, stored)
		}
		res.deal = d
		return nil
	})
	if err != nil {
		return transitionResult{}, translate(err, "diamond")
	}

	if res.settlement != nil {
		// Failures stay queued for the sweeper; the deal is already final.
		_ = s.executeSettlement(context.WithoutCancel(ctx), res.settlement)
	}

	evts := make([]events.Event, 0, len(res.timeline))
	for _, ev := range res.timeline {
		s.metrics.IncDealTransition(string(ev.Status))
		evts = append(evts, dealEvent(res.deal, ev))
	}
	s.logger.InfoContext(ctx, "deal transitioned",
		"deal_id", dealID.String(),
		"operation", op,
		"status", string(res.deal.Status),
		"version", res.deal.Version,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publish(ctx, evts...)
	return res, nil
}

func initiateStep(actor models.Actor) step {
	return step{
		to: models.DealPaymentPending,
		apply: func(d *models.Deal, now time.Time) models.TimelineEvent {
			return d.ApplyPaymentInitiated(actor, now)
		},
	}
}

// InitiatePayment opens the payment flow: created -> payment_pending.
func (s *Service) InitiatePayment(ctx context.Context, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	res, err := s.transition(ctx, "InitiatePayment", actor, dealID, initiateStep(actor))
	return res.deal, err
}

// CapturePayment moves the buyer's funds into escrow: payment_pending ->
// in_escrow. A deal still in created is moved through payment_pending in the
// same transaction. The gateway is called before the diamond lock is taken,
// keyed by the deal so a retried capture reuses the provider's hold. If the
// gateway fails nothing is written and the caller gets payment_failed.
func (s *Service) CapturePayment(ctx context.Context, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	current, err := s.deals.FindByID(ctx, dealID)
	if err != nil {
		return nil, translate(err, "deal")
	}

	var ref string
	capture := step{
		to: models.DealInEscrow,
		apply: func(d *models.Deal, now time.Time) models.TimelineEvent {
			return d.ApplyPaymentCaptured(ref, actor, now)
		},
	}
	steps := []step{capture}
	if current.Status == models.DealCreated {
		steps = []step{initiateStep(actor), capture}
	}
	if err := precheck(current, actor, steps...); err != nil {
		return nil, err
	}

	ref, err = s.payments.Capture(ctx, payment.CaptureRequest{
		DealID:         current.ID,
		Payer:          current.BuyerID,
		Payee:          current.SellerID,
		Amount:         current.FinalAmount,
		Currency:       string(current.Currency),
		IdempotencyKey: payment.CaptureKey(current.ID),
	})
	if err != nil {
		s.metrics.IncPaymentFailure("capture")
		s.logger.WarnContext(ctx, "payment capture failed",
			"deal_id", dealID.String(),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodePaymentFailed, "payment capture failed")
	}

	res, err := s.transition(ctx, "CapturePayment", actor, dealID, steps...)
	if err != nil {
		s.dropOrphanedHold(context.WithoutCancel(ctx), dealID, ref)
		return nil, err
	}
	return res.deal, nil
}

// dropOrphanedHold refunds a hold whose deal write did not commit. A
// concurrent capture of the same deal shares the hold through the idempotency
// key; if that one committed the hold is kept.
func (s *Service) dropOrphanedHold(ctx context.Context, dealID id.DealID, ref string) {
	if d, err := s.deals.FindByID(ctx, dealID); err == nil && d.PaymentRef == ref {
		return
	}
	if err := s.payments.Refund(ctx, ref); err != nil {
		s.logger.ErrorContext(ctx, "failed to release orphaned escrow hold",
			"deal_id", dealID.String(),
			"payment_ref", ref,
			"error", err,
		)
	}
}

// ShipDeal records the seller's shipment: in_escrow -> shipped.
func (s *Service) ShipDeal(ctx context.Context, actor models.Actor, dealID id.DealID, info models.ShippingInfo) (*models.Deal, error) {
	res, err := s.transition(ctx, "ShipDeal", actor, dealID, step{
		to: models.DealShipped,
		check: func(_ context.Context, _ *models.Deal) error {
			return models.ValidateShipping(info)
		},
		apply: func(d *models.Deal, now time.Time) models.TimelineEvent {
			return d.ApplyShipped(info, actor, now)
		},
	})
	return res.deal, err
}

// ConfirmDelivery records receipt by the buyer or the carrier: shipped ->
// delivered.
func (s *Service) ConfirmDelivery(ctx context.Context, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	res, err := s.transition(ctx, "ConfirmDelivery", actor, dealID, step{
		to: models.DealDelivered,
		apply: func(d *models.Deal, now time.Time) models.TimelineEvent {
			return d.ApplyDelivered(actor, now)
		},
	})
	return res.deal, err
}

// CompleteDeal retires the diamond and queues the escrow release to the
// seller: delivered -> completed.
func (s *Service) CompleteDeal(ctx context.Context, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	res, err := s.transition(ctx, "CompleteDeal", actor, dealID, step{
		to:     models.DealCompleted,
		escrow: models.SettlementRelease,
		apply: func(d *models.Deal, now time.Time) models.TimelineEvent {
			return d.ApplyCompleted(actor, now)
		},
		settle: s.retireDiamond,
	})
	if err != nil {
		return nil, err
	}
	s.recordCompleted(ctx, res.deal)
	return res.deal, nil
}

// RaiseDispute freezes the deal for admin review: in_escrow, shipped or
// delivered -> disputed.
func (s *Service) RaiseDispute(ctx context.Context, actor models.Actor, dealID id.DealID, reason, description string) (*models.Deal, error) {
	reason = strings.TrimSpace(reason)
	res, err := s.transition(ctx, "RaiseDispute", actor, dealID, step{
		to: models.DealDisputed,
		check: func(_ context.Context, _ *models.Deal) error {
			if reason == "" {
				return dErrors.New(dErrors.CodeValidation, "dispute reason is required")
			}
			return nil
		},
		apply: func(d *models.Deal, now time.Time) models.TimelineEvent {
			return d.ApplyDisputed(reason, strings.TrimSpace(description), actor, now)
		},
	})
	return res.deal, err
}

// ResolveDispute is the admin decision on a disputed deal. in_escrow resumes
// the deal, completed releases funds and retires the diamond, cancelled
// refunds the buyer and puts the diamond and listing back on the market.
func (s *Service) ResolveDispute(ctx context.Context, actor models.Actor, dealID id.DealID, outcome models.DealStatus, resolution string) (*models.Deal, error) {
	if !models.ValidResolution(outcome) {
		return nil, dErrors.New(dErrors.CodeValidation, "outcome must be in_escrow, completed or cancelled")
	}
	st := step{
		to: outcome,
		apply: func(d *models.Deal, now time.Time) models.TimelineEvent {
			return d.ApplyResolution(outcome, strings.TrimSpace(resolution), actor, now)
		},
	}
	switch outcome {
	case models.DealCompleted:
		st.escrow = models.SettlementRelease
		st.settle = s.retireDiamond
	case models.DealCancelled:
		st.escrow = models.SettlementRefund
		st.settle = s.relist
	}
	res, err := s.transition(ctx, "ResolveDispute", actor, dealID, st)
	if err != nil {
		return nil, err
	}
	if outcome == models.DealCompleted {
		s.recordCompleted(ctx, res.deal)
	}
	return res.deal, nil
}

// CancelDeal abandons a deal before payment: created or payment_pending ->
// cancelled. The diamond and listing return to the market.
func (s *Service) CancelDeal(ctx context.Context, actor models.Actor, dealID id.DealID, reason string) (*models.Deal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by buyer"
	}
	res, err := s.transition(ctx, "CancelDeal", actor, dealID, step{
		to: models.DealCancelled,
		apply: func(d *models.Deal, now time.Time) models.TimelineEvent {
			return d.ApplyCancelled(reason, actor, now)
		},
		settle: s.relist,
	})
	return res.deal, err
}

// TimeoutPayments cancels deals that have waited for payment longer than the
// payment timeout. Deals that moved on concurrently are skipped.
func (s *Service) TimeoutPayments(ctx context.Context, now time.Time) (int, error) {
	due, err := s.deals.ListAwaitingPayment(ctx, now.Add(-s.paymentTimeout))
	if err != nil {
		return 0, translate(err, "deal")
	}
	ctx = requestcontext.WithTime(ctx, now)
	cancelled := 0
	for _, d := range due {
		if _, err := s.CancelDeal(ctx, models.SystemActor(), d.ID, "payment timeout"); err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvalidState) {
				continue
			}
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

func (s *Service) GetDeal(ctx context.Context, actor models.Actor, dealID id.DealID) (*models.Deal, error) {
	d, err := s.deals.FindByID(ctx, dealID)
	if err != nil {
		return nil, translate(err, "deal")
	}
	if !d.CanView(actor) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is not a party to this deal")
	}
	return d, nil
}

func (s *Service) ListDealsForUser(ctx context.Context, user id.UserID) ([]*models.Deal, error) {
	deals, err := s.deals.ListByUser(ctx, user)
	if err != nil {
		return nil, translate(err, "deal")
	}
	return deals, nil
}

// Timeline returns the deal's history in sequence order.
func (s *Service) Timeline(ctx context.Context, actor models.Actor, dealID id.DealID) ([]models.TimelineEvent, error) {
	if _, err := s.GetDeal(ctx, actor, dealID); err != nil {
		return nil, err
	}
	out, err := s.deals.Timeline(ctx, dealID)
	if err != nil {
		return nil, translate(err, "deal")
	}
	return out, nil
}

// executeSettlement carries out a committed settlement at the gateway and
// records the attempt. Release and refund are idempotent per reference, so a
// settlement whose bookkeeping failed is simply sent again.
func (s *Service) executeSettlement(ctx context.Context, st *models.Settlement) error {
	var err error
	switch st.Action {
	case models.SettlementRefund:
		err = s.payments.Refund(ctx, st.PaymentRef)
	default:
		err = s.payments.Release(ctx, st.PaymentRef)
	}
	if err != nil {
		st.RecordAttempt(err)
		s.metrics.IncPaymentFailure(string(st.Action))
		s.logger.WarnContext(ctx, "escrow settlement failed",
			"deal_id", st.DealID.String(),
			"action", string(st.Action),
			"attempts", st.Attempts,
			"error", err,
		)
	} else {
		st.MarkSettled(requestcontext.Now(ctx))
	}
	if saveErr := s.settlements.Save(ctx, st); saveErr != nil {
		s.logger.ErrorContext(ctx, "failed to record escrow settlement",
			"deal_id", st.DealID.String(),
			"error", saveErr,
		)
		if err == nil {
			err = saveErr
		}
	}
	return err
}

// SettlePending retries settlements whose gateway call has not succeeded yet
// and returns how many went through.
func (s *Service) SettlePending(ctx context.Context, now time.Time) (int, error) {
	pending, err := s.settlements.ListPending(ctx)
	if err != nil {
		return 0, translate(err, "settlement")
	}
	ctx = requestcontext.WithTime(ctx, now)
	settled := 0
	for _, st := range pending {
		if err := s.executeSettlement(ctx, st); err == nil {
			settled++
		}
	}
	return settled, nil
}

// Settlement returns the escrow settlement queued for a deal, if any.
func (s *Service) Settlement(ctx context.Context, actor models.Actor, dealID id.DealID) (*models.Settlement, error) {
	if _, err := s.GetDeal(ctx, actor, dealID); err != nil {
		return nil, err
	}
	st, err := s.settlements.FindByDeal(ctx, dealID)
	if err != nil {
		return nil, translate(err, "settlement")
	}
	return st, nil
}

// retireDiamond closes out a completed deal: locked -> completed for both the
// diamond and its listing.
func (s *Service) retireDiamond(ctx context.Context, d *models.Deal, now time.Time) error {
	if err := s.diamonds.UpdateStatus(ctx, d.DiamondID, models.DiamondLocked, models.DiamondCompleted, now); err != nil {
		return translate(err, "diamond")
	}
	if err := s.listings.UpdateStatus(ctx, d.ListingID, models.ListingLocked, models.ListingCompleted, now); err != nil {
		return translate(err, "listing")
	}
	return nil
}

// relist undoes the lock taken at acceptance: the diamond goes back to
// available and its listing reopens.
func (s *Service) relist(ctx context.Context, d *models.Deal, now time.Time) error {
	if err := s.diamonds.UpdateStatus(ctx, d.DiamondID, models.DiamondLocked, models.DiamondAvailable, now); err != nil {
		return translate(err, "diamond")
	}
	if err := s.listings.UpdateStatus(ctx, d.ListingID, models.ListingLocked, models.ListingActive, now); err != nil {
		return translate(err, "listing")
	}
	return nil
}

// recordCompleted bumps both parties' completed-deal counters. It runs after
// commit and only logs failures.
func (s *Service) recordCompleted(ctx context.Context, d *models.Deal) {
	for _, user := range []id.UserID{d.BuyerID, d.SellerID} {
		if err := s.users.RecordCompletedDeal(ctx, user); err != nil {
			s.logger.WarnContext(ctx, "failed to record completed deal",
				"deal_id", d.ID.String(),
				"user_id", user.String(),
				"error", err,
			)
		}
	}
}

func dealEvent(d *models.Deal, ev models.TimelineEvent) events.Event {
	e := events.New(events.KindDeal, string(ev.Event), d.ID.String(), ev.Timestamp)
	e.DealID = d.ID
	e.ListingID = d.ListingID
	e.ActorID = ev.ActorID
	e.Recipients = []id.UserID{d.BuyerID, d.SellerID}
	e.Description = ev.Description
	return e
}
