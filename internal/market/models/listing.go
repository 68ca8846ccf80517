package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
)

type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingLocked    ListingStatus = "locked"
	ListingCompleted ListingStatus = "completed"
	ListingCancelled ListingStatus = "cancelled"
)

// IsOpen is true while the listing still holds its diamond.
func (s ListingStatus) IsOpen() bool {
	return s == ListingActive || s == ListingLocked
}

const maxDescriptionLength = 2000

// Listing offers one diamond at an asking price.
//
// Invariants:
//   - a diamond has at most one open (active or locked) listing
//   - only the seller mutates the listing directly; bid acceptance and deal
//     outcomes move it between active, locked and completed
//   - BidCount and ViewCount only grow
type Listing struct {
	ID          id.ListingID    `json:"id"`
	DiamondID   id.DiamondID    `json:"diamond_id"`
	SellerID    id.UserID       `json:"seller_id"`
	AskingPrice decimal.Decimal `json:"asking_price"`
	Currency    Currency        `json:"currency"`
	Description string          `json:"description,omitempty"`
	Status      ListingStatus   `json:"status"`
	ViewCount   int64           `json:"view_count"`
	BidCount    int             `json:"bid_count"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func NewListing(listingID id.ListingID, diamond *Diamond, price decimal.Decimal, currency Currency, description string, expiresAt *time.Time, now time.Time) (*Listing, error) {
	if err := ValidateAmount(price); err != nil {
		return nil, err
	}
	description = strings.TrimSpace(description)
	if len(description) > maxDescriptionLength {
		return nil, dErrors.New(dErrors.CodeValidation, "description is too long")
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "listing expiry must be in the future")
	}
	return &Listing{
		ID:          listingID,
		DiamondID:   diamond.ID,
		SellerID:    diamond.OwnerID,
		AskingPrice: price,
		Currency:    currency,
		Description: description,
		Status:      ListingActive,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsAcceptingBids is true when the listing is active and not past its own expiry.
func (l *Listing) IsAcceptingBids(now time.Time) bool {
	if l.Status != ListingActive {
		return false
	}
	return l.ExpiresAt == nil || now.Before(*l.ExpiresAt)
}

// EnsureAcceptingBids returns invalid_state unless bids may be placed or accepted.
func (l *Listing) EnsureAcceptingBids(now time.Time) error {
	if l.Status != ListingActive {
		return dErrors.New(dErrors.CodeInvalidState, "listing is not active")
	}
	if !l.IsAcceptingBids(now) {
		return dErrors.New(dErrors.CodeInvalidState, "listing has expired")
	}
	return nil
}

// CanCancel checks seller ownership first, then state.
func (l *Listing) CanCancel(actor id.UserID) error {
	if l.SellerID != actor {
		return dErrors.New(dErrors.CodeUnauthorized, "only the seller can cancel a listing")
	}
	if l.Status != ListingActive {
		return dErrors.New(dErrors.CodeInvalidState, "listing is not active")
	}
	return nil
}
