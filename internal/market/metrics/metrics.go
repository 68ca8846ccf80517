package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the market module. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Listings and bids by outcome
	ListingsCreated prometheus.Counter
	BidOutcomes     *prometheus.CounterVec

	// Deal transitions keyed by resulting status
	DealTransitions *prometheus.CounterVec

	// Accept attempts that lost the race for a listing
	AcceptConflicts prometheus.Counter

	PaymentFailures *prometheus.CounterVec

	SweepDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		ListingsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reyu_market_listings_created_total",
			Help: "Listings created",
		}),
		BidOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reyu_market_bids_total",
			Help: "Bids by lifecycle outcome",
		}, []string{"status"}), // pending on placement, then the terminal status
		DealTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reyu_market_deal_transitions_total",
			Help: "Deal status transitions by resulting status",
		}, []string{"status"}),
		AcceptConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reyu_market_accept_conflicts_total",
			Help: "Bid acceptances rejected because the listing had already moved on",
		}),
		PaymentFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reyu_market_payment_failures_total",
			Help: "Payment gateway failures by operation",
		}, []string{"operation"}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reyu_market_sweep_duration_seconds",
			Help:    "Duration of one expiry and payment-timeout sweep",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

func (m *Metrics) IncListingCreated() {
	if m != nil {
		m.ListingsCreated.Inc()
	}
}

func (m *Metrics) IncBid(status string) {
	if m != nil {
		m.BidOutcomes.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) AddBids(status string, n int) {
	if m != nil && n > 0 {
		m.BidOutcomes.WithLabelValues(status).Add(float64(n))
	}
}

func (m *Metrics) IncDealTransition(status string) {
	if m != nil {
		m.DealTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncAcceptConflict() {
	if m != nil {
		m.AcceptConflicts.Inc()
	}
}

func (m *Metrics) IncPaymentFailure(operation string) {
	if m != nil {
		m.PaymentFailures.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m != nil {
		m.SweepDuration.Observe(d.Seconds())
	}
}
