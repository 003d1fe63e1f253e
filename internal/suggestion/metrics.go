// internal/suggestion/metrics.go

package suggestion

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_transitions_total",
			Help: "Accepted status changes, one per chained step",
		},
		[]string{"action", "to"},
	)

	rejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_rejections_total",
			Help: "Rejected suggestion operations by kind",
		},
		[]string{"operation", "kind"},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_notification_failures_total",
			Help: "Notifications that failed after the transition committed",
		},
		[]string{"template"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "suggestion_operation_duration_seconds",
			Help:    "Duration of suggestion operations including the transaction",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	suggestionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_created_total",
			Help: "Suggestions created by initial status",
		},
		[]string{"status"},
	)

	expiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "suggestion_expired_total",
			Help: "Suggestions moved to EXPIRED by the deadline sweep",
		},
	)
)

// RecordTransition counts one applied step
func RecordTransition(action Action, to Status) {
	transitionsTotal.WithLabelValues(string(action), string(to)).Inc()
}

// RecordRejection counts a failed operation by error kind
func RecordRejection(operation string, err error) {
	rejectionsTotal.WithLabelValues(operation, errorKind(err)).Inc()
}

// RecordNotificationFailure counts a swallowed notification error
func RecordNotificationFailure(template string) {
	notificationFailures.WithLabelValues(template).Inc()
}

// ObserveOperation records how long an operation took
func ObserveOperation(operation string, start time.Time) {
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, ErrActiveProcess):
		return "active_process"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	}
	return "internal"
}
