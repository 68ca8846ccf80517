package models

import (
	"time"

	id "reyu/pkg/domain"
)

type SettlementAction string

const (
	SettlementRelease SettlementAction = "release"
	SettlementRefund  SettlementAction = "refund"
)

// Settlement is the escrow instruction left by a deal's final transition. It
// is stored in the same transaction as the transition and carried out against
// the payment gateway after commit, retried until SettledAt is set.
type Settlement struct {
	DealID     id.DealID        `json:"deal_id"`
	PaymentRef string           `json:"payment_ref"`
	Action     SettlementAction `json:"action"`
	Attempts   int              `json:"attempts"`
	LastError  string           `json:"last_error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	SettledAt  *time.Time       `json:"settled_at,omitempty"`
}

func NewSettlement(d *Deal, action SettlementAction, now time.Time) *Settlement {
	return &Settlement{
		DealID:     d.ID,
		PaymentRef: d.PaymentRef,
		Action:     action,
		CreatedAt:  now,
	}
}

func (s *Settlement) Pending() bool {
	return s.SettledAt == nil
}

// RecordAttempt notes a failed gateway call.
func (s *Settlement) RecordAttempt(err error) {
	s.Attempts++
	s.LastError = err.Error()
}

func (s *Settlement) MarkSettled(now time.Time) {
	s.Attempts++
	s.LastError = ""
	settled := now
	s.SettledAt = &settled
}
