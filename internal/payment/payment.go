// Package payment moves deal funds into and out of escrow.
//
// The market captures the buyer's payment when a deal enters escrow, releases
// it to the seller when the deal completes and refunds it when a dispute ends
// in cancellation. Ledger simulates the escrow in memory; HTTPGateway talks to
// an external provider.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	id "reyu/pkg/domain"
)

var (
	ErrDeclined         = errors.New("payment declined")
	ErrUnknownReference = errors.New("unknown escrow reference")
	ErrAlreadySettled   = errors.New("escrow already settled")
	ErrUnavailable      = errors.New("payment gateway unavailable")
)

// CaptureRequest moves Amount from Payer into escrow for DealID. Captures
// sharing an IdempotencyKey resolve to the same open hold.
type CaptureRequest struct {
	DealID         id.DealID       `json:"deal_id"`
	Payer          id.UserID       `json:"payer_id"`
	Payee          id.UserID       `json:"payee_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"-"`
}

// CaptureKey is the idempotency key for capturing a deal's payment.
func CaptureKey(dealID id.DealID) string {
	return "capture:" + dealID.String()
}

// Gateway is an escrow provider. Release and Refund succeed when repeated on a
// hold already settled the same way and fail with ErrAlreadySettled when the
// hold went the other way.
type Gateway interface {
	// Capture returns the escrow reference used by Release and Refund.
	Capture(ctx context.Context, req CaptureRequest) (string, error)
	Release(ctx context.Context, ref string) error
	Refund(ctx context.Context, ref string) error
}
