// Package metrics defines the Prometheus metrics exported by the server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UnmatchedRoute labels requests that matched no route, so arbitrary paths
// cannot create new series.
const UnmatchedRoute = "unmatched"

var (
	stackOperationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simulation_stack_operations_total",
			Help: "Total number of stack operations by kind and result",
		},
		[]string{"operation", "result"}, // deploy|destroy, success|error
	)

	stackOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simulation_stack_operation_duration_seconds",
			Help:    "Duration of stack operations against the automation engine",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	stackOperationsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simulation_stack_operations_in_flight",
			Help: "Number of stack operations currently running",
		},
		[]string{"operation"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simulation_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

// StartOperation marks an operation as in flight and returns a function that
// records its outcome.
func StartOperation(operation string) func(err error) {
	start := time.Now()
	stackOperationsInFlight.WithLabelValues(operation).Inc()

	return func(err error) {
		stackOperationsInFlight.WithLabelValues(operation).Dec()
		stackOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

		result := "success"
		if err != nil {
			result = "error"
		}
		stackOperationTotal.WithLabelValues(operation, result).Inc()
	}
}

// ObserveRequest counts one HTTP request.
func ObserveRequest(route, code string) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
}
