// Package metrics exposes the core's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set bundles the counters the core increments.
type Set struct {
	DispenseRequests   *prometheus.CounterVec
	Settlements        *prometheus.CounterVec
	RejectedSignatures prometheus.Counter
	SweepResults       *prometheus.CounterVec
}

// New registers the counter set on the given registerer.
func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		DispenseRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watervend_dispense_requests_total",
			Help: "Dispense requests by outcome.",
		}, []string{"outcome"}),
		Settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watervend_settlements_total",
			Help: "Order settlements by terminal state.",
		}, []string{"state"}),
		RejectedSignatures: factory.NewCounter(prometheus.CounterOpts{
			Name: "watervend_rejected_signatures_total",
			Help: "Vendor pushes dropped for an invalid signature.",
		}),
		SweepResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watervend_refund_sweeps_total",
			Help: "Refund reconciliation attempts by result.",
		}, []string{"result"}),
	}
}
