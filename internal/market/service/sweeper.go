package service

import (
	"context"
	"log/slog"
	"time"

	"reyu/internal/market/metrics"
)

// Sweeper periodically expires stale bids, cancels deals whose payment
// window has passed and retries escrow settlements the gateway refused.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewSweeper(svc *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		now:      time.Now,
		metrics:  svc.metrics,
		logger:   logger,
	}
}

// Run sweeps on every tick until ctx is done.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "market sweeper started", "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "market sweeper stopped")
			return nil
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs every sweep at the current time. Errors are logged; the
// next tick retries.
func (w *Sweeper) SweepOnce(ctx context.Context) {
	start := time.Now()
	now := w.now().UTC()

	expired, err := w.svc.ExpireBids(ctx, now)
	if err != nil {
		w.logger.ErrorContext(ctx, "bid expiry sweep failed", "error", err)
	}
	timedOut, err := w.svc.TimeoutPayments(ctx, now)
	if err != nil {
		w.logger.ErrorContext(ctx, "payment timeout sweep failed", "error", err)
	}
	settled, err := w.svc.SettlePending(ctx, now)
	if err != nil {
		w.logger.ErrorContext(ctx, "escrow settlement sweep failed", "error", err)
	}
	w.metrics.ObserveSweep(time.Since(start))

	if expired > 0 || timedOut > 0 || settled > 0 {
		w.logger.InfoContext(ctx, "market sweep",
			"expired_bids", expired,
			"timed_out_deals", timedOut,
			"settled_escrows", settled,
		)
	}
}
