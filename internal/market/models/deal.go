package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
)

type DealStatus string

const (
	DealCreated        DealStatus = "created"
	DealPaymentPending DealStatus = "payment_pending"
	DealInEscrow       DealStatus = "in_escrow"
	DealShipped        DealStatus = "shipped"
	DealDelivered      DealStatus = "delivered"
	DealCompleted      DealStatus = "completed"
	DealDisputed       DealStatus = "disputed"
	DealCancelled      DealStatus = "cancelled"
)

var AllDealStatuses = []DealStatus{
	DealCreated, DealPaymentPending, DealInEscrow, DealShipped,
	DealDelivered, DealCompleted, DealDisputed, DealCancelled,
}

var dealTransitions = map[DealStatus][]DealStatus{
	DealCreated:        {DealPaymentPending, DealCancelled},
	DealPaymentPending: {DealInEscrow, DealCancelled},
	DealInEscrow:       {DealShipped, DealDisputed},
	DealShipped:        {DealDelivered, DealDisputed},
	DealDelivered:      {DealCompleted, DealDisputed},
	DealDisputed:       {DealInEscrow, DealCompleted, DealCancelled},
}

func (s DealStatus) IsValid() bool {
	for _, known := range AllDealStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s DealStatus) CanTransitionTo(to DealStatus) bool {
	for _, allowed := range dealTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s DealStatus) IsTerminal() bool {
	return s == DealCompleted || s == DealCancelled
}

// AwaitingPayment covers the states a payment timeout may cancel.
func (s DealStatus) AwaitingPayment() bool {
	return s == DealCreated || s == DealPaymentPending
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentInEscrow PaymentStatus = "in_escrow"
	PaymentReleased PaymentStatus = "released"
	PaymentRefunded PaymentStatus = "refunded"
)

type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

// Actor is whoever drives a transition. System is the sweeper.
type Actor struct {
	ID     id.UserID
	Admin  bool
	System bool
}

func SystemActor() Actor {
	return Actor{System: true}
}

type ShippingInfo struct {
	Carrier           string     `json:"carrier"`
	TrackingNumber    string     `json:"tracking_number"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	ShippedAt         time.Time  `json:"shipped_at"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
}

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

type DisputeInfo struct {
	RaisedBy    Party         `json:"raised_by"`
	Reason      string        `json:"reason"`
	Description string        `json:"description,omitempty"`
	Status      DisputeStatus `json:"status"`
	Resolution  string        `json:"resolution,omitempty"`
	ResolvedBy  *id.UserID    `json:"resolved_by,omitempty"`
	RaisedAt    time.Time     `json:"raised_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// Deal is the transaction created when a bid is accepted. Every status change
// goes through transition, which bumps Version and yields the one timeline
// event recording it.
type Deal struct {
	ID            id.DealID       `json:"id"`
	ListingID     id.ListingID    `json:"listing_id"`
	DiamondID     id.DiamondID    `json:"diamond_id"`
	BidID         id.BidID        `json:"bid_id"`
	BuyerID       id.UserID       `json:"buyer_id"`
	SellerID      id.UserID       `json:"seller_id"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	Currency      Currency        `json:"currency"`
	Status        DealStatus      `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
	Shipping      *ShippingInfo   `json:"shipping_info,omitempty"`
	Dispute       *DisputeInfo    `json:"dispute_info,omitempty"`
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// NewDeal builds the deal for an accepted bid together with its first
// timeline event.
func NewDeal(dealID id.DealID, listing *Listing, bid *Bid, seller id.UserID, now time.Time) (*Deal, TimelineEvent) {
	d := &Deal{
		ID:            dealID,
		ListingID:     listing.ID,
		DiamondID:     listing.DiamondID,
		BidID:         bid.ID,
		BuyerID:       bid.BidderID,
		SellerID:      listing.SellerID,
		FinalAmount:   bid.Amount,
		Currency:      bid.Currency,
		Status:        DealCreated,
		PaymentStatus: PaymentPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return d, newTimelineEvent(d, EventCreated, DealCreated, "Deal created from accepted bid", seller, now)
}

// PartyOf reports the user's side of the deal, or "" for outsiders.
func (d *Deal) PartyOf(user id.UserID) Party {
	switch user {
	case d.BuyerID:
		return PartyBuyer
	case d.SellerID:
		return PartySeller
	}
	return ""
}

// CanView is true for both parties and admins.
func (d *Deal) CanView(actor Actor) bool {
	return actor.Admin || actor.System || d.PartyOf(actor.ID) != ""
}

// authorized encodes who may drive each edge of the state machine.
func (d *Deal) authorized(to DealStatus, actor Actor) bool {
	party := d.PartyOf(actor.ID)
	switch {
	case d.Status == DealDisputed:
		return actor.Admin
	case to == DealDisputed:
		return party != ""
	case to == DealShipped:
		return party == PartySeller
	case to == DealPaymentPending, to == DealInEscrow, to == DealDelivered,
		to == DealCompleted, to == DealCancelled:
		return party == PartyBuyer || actor.System
	}
	return false
}

// CanTransition validates the edge and the actor. Outsiders get unauthorized
// before the state is even considered.
func (d *Deal) CanTransition(to DealStatus, actor Actor) error {
	if !d.CanView(actor) {
		return dErrors.New(dErrors.CodeUnauthorized, "actor is not a party to this deal")
	}
	if !d.Status.CanTransitionTo(to) {
		return dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("deal cannot move from %s to %s", d.Status, to))
	}
	if !d.authorized(to, actor) {
		return dErrors.New(dErrors.CodeUnauthorized,
			fmt.Sprintf("actor may not move deal to %s", to))
	}
	return nil
}

func (d *Deal) transition(to DealStatus, event EventType, description string, actor Actor, now time.Time) TimelineEvent {
	d.Status = to
	d.Version++
	d.UpdatedAt = now
	return newTimelineEvent(d, event, to, description, actor.ID, now)
}

func (d *Deal) ApplyPaymentInitiated(actor Actor, now time.Time) TimelineEvent {
	return d.transition(DealPaymentPending, EventPaymentPending, "Awaiting payment from buyer", actor, now)
}

func (d *Deal) ApplyPaymentCaptured(ref string, actor Actor, now time.Time) TimelineEvent {
	d.PaymentStatus = PaymentInEscrow
	d.PaymentRef = ref
	return d.transition(DealInEscrow, EventPaymentReceived, "Payment received and held in escrow", actor, now)
}

func ValidateShipping(info ShippingInfo) error {
	if strings.TrimSpace(info.Carrier) == "" || strings.TrimSpace(info.TrackingNumber) == "" {
		return dErrors.New(dErrors.CodeValidation, "carrier and tracking number are required")
	}
	return nil
}

func (d *Deal) ApplyShipped(info ShippingInfo, actor Actor, now time.Time) TimelineEvent {
	info.Carrier = strings.TrimSpace(info.Carrier)
	info.TrackingNumber = strings.TrimSpace(info.TrackingNumber)
	info.ShippedAt = now
	info.DeliveredAt = nil
	d.Shipping = &info
	return d.transition(DealShipped, EventShipped,
		fmt.Sprintf("Shipped via %s, tracking %s", info.Carrier, info.TrackingNumber), actor, now)
}

func (d *Deal) ApplyDelivered(actor Actor, now time.Time) TimelineEvent {
	if d.Shipping != nil {
		delivered := now
		d.Shipping.DeliveredAt = &delivered
	}
	return d.transition(DealDelivered, EventDelivered, "Delivery confirmed", actor, now)
}

func (d *Deal) ApplyCompleted(actor Actor, now time.Time) TimelineEvent {
	d.PaymentStatus = PaymentReleased
	completed := now
	d.CompletedAt = &completed
	return d.transition(DealCompleted, EventCompleted, "Deal completed, funds released to seller", actor, now)
}

func (d *Deal) ApplyDisputed(reason, description string, actor Actor, now time.Time) TimelineEvent {
	party := d.PartyOf(actor.ID)
	d.Dispute = &DisputeInfo{
		RaisedBy:    party,
		Reason:      reason,
		Description: description,
		Status:      DisputeOpen,
		RaisedAt:    now,
	}
	return d.transition(DealDisputed, EventDisputeRaised,
		fmt.Sprintf("Dispute raised by %s: %s", party, reason), actor, now)
}

// ApplyResolution closes the open dispute with outcome. A cancelled outcome
// marks the escrow refunded; a completed one releases it.
func (d *Deal) ApplyResolution(outcome DealStatus, resolution string, actor Actor, now time.Time) TimelineEvent {
	if d.Dispute != nil {
		resolvedAt := now
		resolvedBy := actor.ID
		d.Dispute.Status = DisputeResolved
		d.Dispute.Resolution = resolution
		d.Dispute.ResolvedBy = &resolvedBy
		d.Dispute.ResolvedAt = &resolvedAt
	}
	switch outcome {
	case DealCancelled:
		d.PaymentStatus = PaymentRefunded
	case DealCompleted:
		d.PaymentStatus = PaymentReleased
		completed := now
		d.CompletedAt = &completed
	}
	return d.transition(outcome, EventDisputeResolved,
		fmt.Sprintf("Dispute resolved (%s): %s", outcome, resolution), actor, now)
}

func (d *Deal) ApplyCancelled(reason string, actor Actor, now time.Time) TimelineEvent {
	return d.transition(DealCancelled, EventCancelled, "Deal cancelled: "+reason, actor, now)
}

// ValidResolution reports whether outcome is a legal dispute resolution.
func ValidResolution(outcome DealStatus) bool {
	return DealDisputed.CanTransitionTo(outcome)
}
