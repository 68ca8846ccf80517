// Package domain holds identifier types shared across modules.
//
// Identifiers are distinct types over uuid.UUID so a ListingID can never be
// passed where a BidID is expected. Persistence layers store them as text.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "reyu/pkg/domain-errors"
)

type (
	UserID         uuid.UUID
	DiamondID      uuid.UUID
	ListingID      uuid.UUID
	BidID          uuid.UUID
	DealID         uuid.UUID
	TimelineID     uuid.UUID
	RatingID       uuid.UUID
	NotificationID uuid.UUID
)

// maxIDLength bounds input before it reaches uuid.Parse.
const maxIDLength = 64

func parseUUID(kind, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, kind+" is required")
	}
	if len(raw) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+kind)
	}
	return parsed, nil
}

func unmarshalUUID(text []byte) (uuid.UUID, error) {
	if len(text) == 0 {
		return uuid.Nil, nil
	}
	return uuid.ParseBytes(text)
}

func NewUserID() UserID { return UserID(uuid.New()) }

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user_id", s)
	return UserID(u), err
}

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	*id = UserID(u)
	return err
}

func NewDiamondID() DiamondID { return DiamondID(uuid.New()) }

func ParseDiamondID(s string) (DiamondID, error) {
	u, err := parseUUID("diamond_id", s)
	return DiamondID(u), err
}

func (id DiamondID) String() string { return uuid.UUID(id).String() }
func (id DiamondID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id DiamondID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *DiamondID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	*id = DiamondID(u)
	return err
}

func NewListingID() ListingID { return ListingID(uuid.New()) }

func ParseListingID(s string) (ListingID, error) {
	u, err := parseUUID("listing_id", s)
	return ListingID(u), err
}

func (id ListingID) String() string { return uuid.UUID(id).String() }
func (id ListingID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ListingID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ListingID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	*id = ListingID(u)
	return err
}

func NewBidID() BidID { return BidID(uuid.New()) }

func ParseBidID(s string) (BidID, error) {
	u, err := parseUUID("bid_id", s)
	return BidID(u), err
}

func (id BidID) String() string { return uuid.UUID(id).String() }
func (id BidID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id BidID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *BidID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	*id = BidID(u)
	return err
}

func NewDealID() DealID { return DealID(uuid.New()) }

func ParseDealID(s string) (DealID, error) {
	u, err := parseUUID("deal_id", s)
	return DealID(u), err
}

func (id DealID) String() string { return uuid.UUID(id).String() }
func (id DealID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id DealID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *DealID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	*id = DealID(u)
	return err
}

func NewTimelineID() TimelineID { return TimelineID(uuid.New()) }

func (id TimelineID) String() string { return uuid.UUID(id).String() }

func (id TimelineID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *TimelineID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	*id = TimelineID(u)
	return err
}

func NewRatingID() RatingID { return RatingID(uuid.New()) }

func (id RatingID) String() string { return uuid.UUID(id).String() }

func (id RatingID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *RatingID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	*id = RatingID(u)
	return err
}

func NewNotificationID() NotificationID { return NotificationID(uuid.New()) }

func ParseNotificationID(s string) (NotificationID, error) {
	u, err := parseUUID("notification_id", s)
	return NotificationID(u), err
}

func (id NotificationID) String() string { return uuid.UUID(id).String() }

func (id NotificationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *NotificationID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID(text)
	*id = NotificationID(u)
	return err
}
