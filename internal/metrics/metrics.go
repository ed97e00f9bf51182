// Package metrics provides Prometheus metrics for the derivative pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivr_events_total",
			Help: "Total number of routed notifications, by action",
		},
		[]string{"action"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "derivr_dispatch_duration_seconds",
			Help:    "Time spent handling one routed notification",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"action", "status"},
	)

	derivativesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivr_derivatives_total",
			Help: "Total number of derivative uploads, by outcome",
		},
		[]string{"status"},
	)

	cascadeDeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivr_cascade_deletes_total",
			Help: "Total number of derivative deletions during cascades, by outcome",
		},
		[]string{"status"},
	)

	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivr_store_operations_total",
			Help: "Total number of object store operations",
		},
		[]string{"provider", "operation", "status"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "derivr_store_operation_duration_seconds",
			Help:    "Object store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordEvent counts one routed notification.
func RecordEvent(action string) {
	eventsTotal.WithLabelValues(action).Inc()
}

// ObserveDispatch records how long handling a notification took.
func ObserveDispatch(action string, d time.Duration, success bool) {
	dispatchDuration.WithLabelValues(action, status(success)).Observe(d.Seconds())
}

// RecordDerivative counts one derivative (or normalized original) upload.
func RecordDerivative(success bool) {
	derivativesTotal.WithLabelValues(status(success)).Inc()
}

// RecordCascadeDelete counts one derivative removal attempt.
func RecordCascadeDelete(success bool) {
	cascadeDeletesTotal.WithLabelValues(status(success)).Inc()
}

// RecordStoreOperation records a call against the object store.
func RecordStoreOperation(provider, operation string, d time.Duration, success bool) {
	storeOperationsTotal.WithLabelValues(provider, operation, status(success)).Inc()
	storeOperationDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
