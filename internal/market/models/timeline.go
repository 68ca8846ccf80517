package models

import (
	"fmt"
	"time"

	id "reyu/pkg/domain"
)

// EventType names a timeline entry. Most mirror the status they lead to;
// payment_received, dispute_raised and dispute_resolved carry the status in
// TimelineEvent.Status.
type EventType string

const (
	EventCreated         EventType = "created"
	EventPaymentPending  EventType = "payment_pending"
	EventPaymentReceived EventType = "payment_received"
	EventShipped         EventType = "shipped"
	EventDelivered       EventType = "delivered"
	EventCompleted       EventType = "completed"
	EventDisputeRaised   EventType = "dispute_raised"
	EventDisputeResolved EventType = "dispute_resolved"
	EventCancelled       EventType = "cancelled"
)

// TimelineEvent is an immutable history entry. Sequence is assigned by the
// store on append and is contiguous from 1 per deal.
type TimelineEvent struct {
	ID          id.TimelineID `json:"id"`
	DealID      id.DealID     `json:"deal_id"`
	Sequence    int           `json:"sequence"`
	Event       EventType     `json:"event"`
	Status      DealStatus    `json:"status"`
	Description string        `json:"description"`
	ActorID     id.UserID     `json:"actor_id"`
	Timestamp   time.Time     `json:"timestamp"`
}

func newTimelineEvent(d *Deal, event EventType, status DealStatus, description string, actor id.UserID, now time.Time) TimelineEvent {
	return TimelineEvent{
		ID:          id.NewTimelineID(),
		DealID:      d.ID,
		Event:       event,
		Status:      status,
		Description: description,
		ActorID:     actor,
		Timestamp:   now,
	}
}

// ReplayStatus folds a timeline in order and returns the status it leads to.
// It fails on an empty history, a history that does not start with created,
// or any step the state machine does not allow.
func ReplayStatus(events []TimelineEvent) (DealStatus, error) {
	if len(events) == 0 {
		return "", fmt.Errorf("empty timeline")
	}
	if events[0].Status != DealCreated {
		return "", fmt.Errorf("timeline starts with %s, want created", events[0].Status)
	}
	status := DealCreated
	for i, e := range events[1:] {
		if e.Sequence != 0 && e.Sequence != i+2 {
			return "", fmt.Errorf("timeline sequence gap at %d", e.Sequence)
		}
		if !status.CanTransitionTo(e.Status) {
			return "", fmt.Errorf("illegal step %s -> %s at position %d", status, e.Status, i+2)
		}
		status = e.Status
	}
	return status, nil
}
