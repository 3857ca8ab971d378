// Package metrics exposes Prometheus counters for bracket placement and OCO
// reconciliation activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bracketsPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracketd_brackets_total",
			Help: "Bracket placement attempts by symbol and outcome",
		},
		[]string{"symbol", "outcome"},
	)

	reconcileCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bracketd_reconcile_cycles_total",
			Help: "Reconciliation cycles that inspected venue state",
		},
	)

	siblingCancels = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracketd_sibling_cancels_total",
			Help: "OCO sibling cancel attempts by result",
		},
		[]string{"result"},
	)

	gatewayErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bracketd_gateway_errors_total",
			Help: "Venue gateway call failures by operation",
		},
		[]string{"op"},
	)

	activeGroups = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bracketd_active_bracket_groups",
			Help: "Bracket groups currently under OCO watch",
		},
	)
)

func init() {
	prometheus.MustRegister(bracketsPlaced)
	prometheus.MustRegister(reconcileCycles)
	prometheus.MustRegister(siblingCancels)
	prometheus.MustRegister(gatewayErrors)
	prometheus.MustRegister(activeGroups)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPlacement counts one bracket placement attempt.
func RecordPlacement(symbol, outcome string) {
	bracketsPlaced.WithLabelValues(symbol, outcome).Inc()
}

// RecordCycle counts one reconciliation cycle that reached the venue.
func RecordCycle() {
	reconcileCycles.Inc()
}

// RecordSiblingCancel counts one OCO sibling cancel attempt.
func RecordSiblingCancel(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	siblingCancels.WithLabelValues(result).Inc()
}

// RecordGatewayError counts one failed venue call.
func RecordGatewayError(op string) {
	gatewayErrors.WithLabelValues(op).Inc()
}

// SetActiveGroups updates the registry size gauge.
func SetActiveGroups(n int) {
	activeGroups.Set(float64(n))
}
