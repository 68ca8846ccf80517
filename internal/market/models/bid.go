package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
)

type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidCancelled BidStatus = "cancelled"
	BidExpired   BidStatus = "expired"
)

// IsTerminal reports whether the bid has left pending. Terminal bids never move.
func (s BidStatus) IsTerminal() bool {
	return s != BidPending
}

const maxNoteLength = 500

// Bid is an offer against a listing. A pending bid reaches exactly one
// terminal state.
type Bid struct {
	ID        id.BidID        `json:"id"`
	ListingID id.ListingID    `json:"listing_id"`
	BidderID  id.UserID       `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  Currency        `json:"currency"`
	Note      string          `json:"note,omitempty"`
	Status    BidStatus       `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func NewBid(bidID id.BidID, listing *Listing, bidder id.UserID, amount decimal.Decimal, currency Currency, note string, expiresAt, now time.Time) (*Bid, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	if currency != listing.Currency {
		return nil, dErrors.New(dErrors.CodeValidation, "bid currency must match listing currency")
	}
	if !expiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "bid expiry must be in the future")
	}
	note = strings.TrimSpace(note)
	if len(note) > maxNoteLength {
		return nil, dErrors.New(dErrors.CodeValidation, "note is too long")
	}
	return &Bid{
		ID:        bidID,
		ListingID: listing.ID,
		BidderID:  bidder,
		Amount:    amount,
		Currency:  currency,
		Note:      note,
		Status:    BidPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// IsExpiredAt is true for a pending bid at or past its expiry.
func (b *Bid) IsExpiredAt(now time.Time) bool {
	return b.Status == BidPending && !now.Before(b.ExpiresAt)
}

// CanAccept re-validates expiry regardless of whether a sweep has run.
func (b *Bid) CanAccept(now time.Time) error {
	if b.Status != BidPending {
		return dErrors.New(dErrors.CodeInvalidState, "bid is not pending")
	}
	if b.IsExpiredAt(now) {
		return dErrors.New(dErrors.CodeInvalidState, "bid has expired")
	}
	return nil
}

func (b *Bid) CanCancel(actor id.UserID) error {
	if b.BidderID != actor {
		return dErrors.New(dErrors.CodeUnauthorized, "only the bidder can cancel a bid")
	}
	if b.Status != BidPending {
		return dErrors.New(dErrors.CodeInvalidState, "bid is not pending")
	}
	return nil
}

// Apply moves the bid to a terminal status.
func (b *Bid) Apply(to BidStatus, now time.Time) {
	b.Status = to
	b.UpdatedAt = now
}
