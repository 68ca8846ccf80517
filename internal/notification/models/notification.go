// Package models defines per-user notifications derived from market and
// account events.
package models

import (
	"time"

	"reyu/internal/events"
	id "reyu/pkg/domain"
)

type Type string

const (
	TypeNewBid        Type = "new_bid"
	TypeBidAccepted   Type = "bid_accepted"
	TypeBidRejected   Type = "bid_rejected"
	TypeDealUpdate    Type = "deal_update"
	TypePaymentUpdate Type = "payment_update"
	TypeKYCUpdate     Type = "kyc_update"
)

// Notification is one inbox entry. EventID ties it to the event that produced
// it; a user gets at most one notification per event.
type Notification struct {
	ID               id.NotificationID `json:"id"`
	UserID           id.UserID         `json:"user_id"`
	Type             Type              `json:"type"`
	Title            string            `json:"title"`
	Message          string            `json:"message"`
	LinkedEntityID   string            `json:"linked_entity_id,omitempty"`
	LinkedEntityType string            `json:"linked_entity_type,omitempty"`
	EventID          string            `json:"event_id"`
	IsRead           bool              `json:"is_read"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Template is what an event turns into, before it is addressed to a user.
type Template struct {
	Type             Type
	Title            string
	LinkedEntityID   string
	LinkedEntityType string
}

// Classify maps an event to its notification template. Listing events and
// anything unknown produce no notification.
func Classify(e events.Event) (Template, bool) {
	switch e.Kind {
	case events.KindBid:
		t := Template{LinkedEntityID: e.ListingID.String(), LinkedEntityType: "listing"}
		switch e.Name {
		case "placed":
			t.Type, t.Title = TypeNewBid, "New bid received"
		case "accepted":
			t.Type, t.Title = TypeBidAccepted, "Bid accepted"
		case "rejected":
			t.Type, t.Title = TypeBidRejected, "Bid rejected"
		case "expired":
			t.Type, t.Title = TypeBidRejected, "Bid expired"
		case "cancelled":
			t.Type, t.Title = TypeBidRejected, "Bid cancelled"
		default:
			return Template{}, false
		}
		return t, true
	case events.KindDeal:
		t := Template{Type: TypeDealUpdate, Title: "Deal update", LinkedEntityID: e.DealID.String(), LinkedEntityType: "deal"}
		switch e.Name {
		case "payment_pending", "payment_received":
			t.Type, t.Title = TypePaymentUpdate, "Payment update"
		case "dispute_raised":
			t.Title = "Dispute raised"
		case "dispute_resolved":
			t.Title = "Dispute resolved"
		}
		return t, true
	case events.KindUser:
		return Template{Type: TypeKYCUpdate, Title: "Account update", LinkedEntityID: e.EntityID, LinkedEntityType: "user"}, true
	default:
		return Template{}, false
	}
}

// New addresses a template to one recipient.
func New(t Template, userID id.UserID, e events.Event, now time.Time) *Notification {
	return &Notification{
		ID:               id.NewNotificationID(),
		UserID:           userID,
		Type:             t.Type,
		Title:            t.Title,
		Message:          e.Description,
		LinkedEntityID:   t.LinkedEntityID,
		LinkedEntityType: t.LinkedEntityType,
		EventID:          e.ID,
		CreatedAt:        now,
	}
}
