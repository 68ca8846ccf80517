package events

import (
	"time"

	"github.com/google/uuid"

	id "reyu/pkg/domain"
)

// Kind groups events by the aggregate that emitted them.
type Kind string

const (
	KindListing Kind = "listing"
	KindBid     Kind = "bid"
	KindDeal    Kind = "deal"
	KindUser    Kind = "user"
)

// Event is emitted after a market or identity change commits. It is
// transport-agnostic so the in-process worker, RabbitMQ and Kafka can carry it.
// Recipients is resolved by the producer; consumers only fan out.
type Event struct {
	ID          string       `json:"id"`
	Kind        Kind         `json:"kind"`
	Name        string       `json:"name"`
	EntityID    string       `json:"entity_id"`
	ListingID   id.ListingID `json:"listing_id"`
	DealID      id.DealID    `json:"deal_id"`
	BidID       id.BidID     `json:"bid_id"`
	ActorID     id.UserID    `json:"actor_id"`
	Recipients  []id.UserID  `json:"recipients"`
	Description string       `json:"description"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// New stamps an event with a fresh id.
func New(kind Kind, name, entityID string, occurredAt time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Name:       name,
		EntityID:   entityID,
		OccurredAt: occurredAt,
	}
}

// RoutingKey is "<kind>.<name>", e.g. "deal.in_escrow".
func (e Event) RoutingKey() string {
	return string(e.Kind) + "." + e.Name
}

// PartitionKey keeps every event of one entity on one partition.
func (e Event) PartitionKey() string {
	return e.EntityID
}
