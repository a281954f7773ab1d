// Package metrics exposes Prometheus instrumentation for the money-movement
// paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors used by the services. A single instance is
// created at startup and shared via dependency injection so tests can use an
// isolated registry.
type Metrics struct {
	LedgerAppends       *prometheus.CounterVec
	PayoutTransitions   *prometheus.CounterVec
	GiftCardRedemptions *prometheus.CounterVec
	GatewayRefundSync   prometheus.Histogram
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LedgerAppends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consultapay_ledger_appends_total",
			Help: "Ledger appends by entry type and outcome.",
		}, []string{"type", "outcome"}),
		PayoutTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consultapay_payout_transitions_total",
			Help: "Payout lifecycle transitions by target state.",
		}, []string{"to"}),
		GiftCardRedemptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "consultapay_giftcard_redemptions_total",
			Help: "Gift card redemption attempts by outcome.",
		}, []string{"outcome"}),
		GatewayRefundSync: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "consultapay_gateway_refund_seconds",
			Help:    "Latency of payment-gateway refund calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// NewNop returns metrics on a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
