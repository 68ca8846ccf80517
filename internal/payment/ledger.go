package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	id "reyu/pkg/domain"
)

type holdState int

const (
	holdOpen holdState = iota
	holdReleased
	holdRefunded
)

type hold struct {
	req   CaptureRequest
	state holdState
}

// Ledger is an in-memory escrow. Balances are net settlement positions: a
// release credits the payee, a refund credits the payer back to zero.
type Ledger struct {
	mu       sync.Mutex
	holds    map[string]*hold
	byKey    map[string]string
	balances map[id.UserID]decimal.Decimal
	failWith error
}

type LedgerOption func(*Ledger)

// WithCaptureFailure makes every Capture fail with err.
func WithCaptureFailure(err error) LedgerOption {
	return func(l *Ledger) {
		l.failWith = err
	}
}

func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		holds:    make(map[string]*hold),
		byKey:    make(map[string]string),
		balances: make(map[id.UserID]decimal.Decimal),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FailCaptures switches capture failures on (err != nil) or off.
func (l *Ledger) FailCaptures(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failWith = err
}

func (l *Ledger) Capture(_ context.Context, req CaptureRequest) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failWith != nil {
		return "", l.failWith
	}
	if !req.Amount.IsPositive() {
		return "", ErrDeclined
	}
	if ref, ok := l.byKey[req.IdempotencyKey]; ok && l.holds[ref].state == holdOpen {
		return ref, nil
	}
	ref := "esc_" + uuid.NewString()
	l.holds[ref] = &hold{req: req}
	if req.IdempotencyKey != "" {
		l.byKey[req.IdempotencyKey] = ref
	}
	l.balances[req.Payer] = l.balance(req.Payer).Sub(req.Amount)
	return ref, nil
}

func (l *Ledger) Release(_ context.Context, ref string) error {
	return l.settle(ref, holdReleased)
}

func (l *Ledger) Refund(_ context.Context, ref string) error {
	return l.settle(ref, holdRefunded)
}

func (l *Ledger) settle(ref string, to holdState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holds[ref]
	if !ok {
		return ErrUnknownReference
	}
	if h.state == to {
		return nil
	}
	if h.state != holdOpen {
		return ErrAlreadySettled
	}
	h.state = to
	beneficiary := h.req.Payee
	if to == holdRefunded {
		beneficiary = h.req.Payer
	}
	l.balances[beneficiary] = l.balance(beneficiary).Add(h.req.Amount)
	return nil
}

// Balance is the user's net position across settled and open escrows.
func (l *Ledger) Balance(user id.UserID) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(user)
}

// Held is the total still sitting in open escrows.
func (l *Ledger) Held() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := decimal.Zero
	for _, h := range l.holds {
		if h.state == holdOpen {
			total = total.Add(h.req.Amount)
		}
	}
	return total
}

func (l *Ledger) balance(user id.UserID) decimal.Decimal {
	if b, ok := l.balances[user]; ok {
		return b
	}
	return decimal.Zero
}
