package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "reyu/pkg/domain"
	"reyu/pkg/platform/circuit"
)

func captureReq(amount string) CaptureRequest {
	return CaptureRequest{
		DealID:   id.NewDealID(),
		Payer:    id.NewUserID(),
		Payee:    id.NewUserID(),
		Amount:   decimal.RequireFromString(amount),
		Currency: "USD",
	}
}

func TestLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("release credits the payee", func(t *testing.T) {
		l := NewLedger()
		req := captureReq("1500.00")
		ref, err := l.Capture(ctx, req)
		require.NoError(t, err)
		assert.True(t, l.Held().Equal(req.Amount))

		require.NoError(t, l.Release(ctx, ref))
		assert.True(t, l.Balance(req.Payee).Equal(req.Amount))
		assert.True(t, l.Balance(req.Payer).Equal(req.Amount.Neg()))
		assert.True(t, l.Held().IsZero())
	})

	t.Run("refund returns funds to the payer", func(t *testing.T) {
		l := NewLedger()
		req := captureReq("99.99")
		ref, err := l.Capture(ctx, req)
		require.NoError(t, err)

		require.NoError(t, l.Refund(ctx, ref))
		assert.True(t, l.Balance(req.Payer).IsZero())
		assert.True(t, l.Balance(req.Payee).IsZero())
	})

	t.Run("settling the other way fails", func(t *testing.T) {
		l := NewLedger()
		ref, err := l.Capture(ctx, captureReq("10"))
		require.NoError(t, err)
		require.NoError(t, l.Release(ctx, ref))
		assert.ErrorIs(t, l.Refund(ctx, ref), ErrAlreadySettled)
	})

	t.Run("repeating a settlement is a no-op", func(t *testing.T) {
		l := NewLedger()
		req := captureReq("250")
		ref, err := l.Capture(ctx, req)
		require.NoError(t, err)

		require.NoError(t, l.Release(ctx, ref))
		require.NoError(t, l.Release(ctx, ref))
		assert.True(t, l.Balance(req.Payee).Equal(req.Amount), "payee credited once")

		ref, err = l.Capture(ctx, req)
		require.NoError(t, err)
		require.NoError(t, l.Refund(ctx, ref))
		require.NoError(t, l.Refund(ctx, ref))
		assert.True(t, l.Balance(req.Payer).Equal(req.Amount.Neg()), "refund credited once")
	})

	t.Run("captures with the same key share the open hold", func(t *testing.T) {
		l := NewLedger()
		req := captureReq("40")
		req.IdempotencyKey = CaptureKey(req.DealID)

		first, err := l.Capture(ctx, req)
		require.NoError(t, err)
		second, err := l.Capture(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.True(t, l.Held().Equal(req.Amount))

		require.NoError(t, l.Refund(ctx, first))
		third, err := l.Capture(ctx, req)
		require.NoError(t, err)
		assert.NotEqual(t, first, third, "a settled hold is not reused")
	})

	t.Run("captures without a key are independent", func(t *testing.T) {
		l := NewLedger()
		req := captureReq("40")
		first, err := l.Capture(ctx, req)
		require.NoError(t, err)
		second, err := l.Capture(ctx, req)
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
		assert.True(t, l.Held().Equal(req.Amount.Mul(decimal.NewFromInt(2))))
	})

	t.Run("unknown reference", func(t *testing.T) {
		assert.ErrorIs(t, NewLedger().Release(ctx, "esc_missing"), ErrUnknownReference)
	})

	t.Run("configured capture failure", func(t *testing.T) {
		l := NewLedger(WithCaptureFailure(ErrDeclined))
		_, err := l.Capture(ctx, captureReq("10"))
		assert.ErrorIs(t, err, ErrDeclined)
		assert.True(t, l.Held().IsZero())

		l.FailCaptures(nil)
		_, err = l.Capture(ctx, captureReq("10"))
		assert.NoError(t, err)
	})
}

func TestHTTPGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("capture then release", func(t *testing.T) {
		var released string
		keys := map[string]string{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keys[r.URL.Path] = r.Header.Get(IdempotencyHeader)
			switch r.URL.Path {
			case "/v1/escrows":
				var req CaptureRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "USD", req.Currency)
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"reference":"esc_123"}`))
			case "/v1/escrows/esc_123/release":
				released = "esc_123"
				w.WriteHeader(http.StatusNoContent)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer srv.Close()

		g := NewHTTPGateway(srv.URL+"/", time.Second)
		req := captureReq("10.00")
		req.IdempotencyKey = CaptureKey(req.DealID)
		ref, err := g.Capture(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "esc_123", ref)
		require.NoError(t, g.Release(ctx, ref))
		assert.Equal(t, "esc_123", released)

		assert.Equal(t, "capture:"+req.DealID.String(), keys["/v1/escrows"])
		assert.Equal(t, "esc_123:release", keys["/v1/escrows/esc_123/release"])
	})

	t.Run("status mapping", func(t *testing.T) {
		status := http.StatusPaymentRequired
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		defer srv.Close()
		g := NewHTTPGateway(srv.URL, time.Second)

		_, err := g.Capture(ctx, captureReq("10"))
		assert.ErrorIs(t, err, ErrDeclined)

		status = http.StatusNotFound
		assert.ErrorIs(t, g.Refund(ctx, "esc_x"), ErrUnknownReference)

		status = http.StatusConflict
		assert.ErrorIs(t, g.Refund(ctx, "esc_x"), ErrAlreadySettled)

		status = http.StatusBadGateway
		assert.ErrorIs(t, g.Release(ctx, "esc_x"), ErrUnavailable)
	})

	t.Run("repeated outages open the breaker", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		b := circuit.New("test", circuit.WithFailureThreshold(2))
		g := NewHTTPGateway(srv.URL, time.Second, WithBreaker(b))

		for range 2 {
			_, err := g.Capture(ctx, captureReq("10"))
			require.True(t, errors.Is(err, ErrUnavailable))
		}
		assert.True(t, b.IsOpen())
	})

	t.Run("open breaker fails fast until a trial succeeds", func(t *testing.T) {
		var hits atomic.Int32
		healthy := atomic.Bool{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			if !healthy.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		b := circuit.New("test",
			circuit.WithFailureThreshold(1),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(time.Minute),
			circuit.WithClock(func() time.Time { return now }),
		)
		g := NewHTTPGateway(srv.URL, time.Second, WithBreaker(b))

		assert.ErrorIs(t, g.Release(ctx, "esc_1"), ErrUnavailable)
		require.True(t, b.IsOpen())
		require.EqualValues(t, 1, hits.Load())

		healthy.Store(true)
		assert.ErrorIs(t, g.Release(ctx, "esc_1"), ErrUnavailable)
		assert.EqualValues(t, 1, hits.Load(), "no request while open")

		now = now.Add(time.Minute)
		require.NoError(t, g.Release(ctx, "esc_1"))
		assert.EqualValues(t, 2, hits.Load())
		assert.Equal(t, circuit.StateClosed, b.State())
	})
}
