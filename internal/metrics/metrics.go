package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "barangay_borrowing"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Borrow request admissions by outcome.",
		},
		[]string{"outcome"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Status transitions by target status and outcome.",
		},
		[]string{"status", "outcome"},
	)

	notificationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be delivered.",
		},
		[]string{"audience"},
	)

	overcommitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overcommitment_detected_total",
			Help:      "Availability queries that found more units committed than in stock.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, admissions, transitions, notificationFailures, overcommitted)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncAdmission records an admission outcome: accepted, insufficient_capacity, invalid, error.
func IncAdmission(outcome string) {
	admissions.WithLabelValues(outcome).Inc()
}

func IncTransition(status, outcome string) {
	transitions.WithLabelValues(status, outcome).Inc()
}

func IncNotificationFailure(audience string) {
	notificationFailures.WithLabelValues(audience).Inc()
}

func IncOvercommitted() {
	overcommitted.Inc()
}
