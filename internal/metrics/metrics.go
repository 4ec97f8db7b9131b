// Package metrics exposes Prometheus instrumentation for allocation,
// check-in, the durable store and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Allocation
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_registrations_total",
			Help: "Registration attempts by outcome",
		},
		[]string{"outcome"}, // "confirmed", "already_registered", "event_full", "not_found", "invalid", "error"
	)

	RegistrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticketing_registration_duration_seconds",
			Help:    "Time to allocate a ticket, including store retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	TicketsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_tickets_generated_total",
			Help: "Tickets materialized into event pools",
		},
	)

	// Check-in
	CheckinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_checkins_total",
			Help: "Ticket validations by result",
		},
		[]string{"result"}, // "valid", a rejection reason, or "invalid_credential"
	)

	// Store
	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_store_conflict_retries_total",
			Help: "Transactions retried after a concurrent modification",
		},
		[]string{"driver"},
	)

	StoreTxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketing_store_tx_duration_seconds",
			Help:    "Duration of store transactions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver", "mode"},
	)

	// Broker
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_domain_events_published_total",
			Help: "Domain events handed to the broker by topic and result",
		},
		[]string{"topic", "result"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_notifications_total",
			Help: "Notifications dispatched by the worker",
		},
		[]string{"topic"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Requests currently being served",
		},
	)
)

// RecordRegistration records one allocation attempt.
func RecordRegistration(outcome string, duration time.Duration) {
	RegistrationsTotal.WithLabelValues(outcome).Inc()
	RegistrationDuration.Observe(duration.Seconds())
}

// RecordCheckin records one validation result. An empty reason means the
// ticket was admitted.
func RecordCheckin(reason string) {
	if reason == "" {
		reason = "valid"
	}
	CheckinsTotal.WithLabelValues(reason).Inc()
}

// RecordTicketsGenerated adds n tickets to the generated counter.
func RecordTicketsGenerated(n int) {
	TicketsGenerated.Add(float64(n))
}

// RecordStoreRetry counts one conflict retry for driver.
func RecordStoreRetry(driver string) {
	StoreRetries.WithLabelValues(driver).Inc()
}

// RecordStoreTx observes a transaction duration. mode is "read" or "write".
func RecordStoreTx(driver, mode string, duration time.Duration) {
	StoreTxDuration.WithLabelValues(driver, mode).Observe(duration.Seconds())
}

// RecordPublish records a domain event publication attempt.
func RecordPublish(topic string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsPublished.WithLabelValues(topic, result).Inc()
}

// RecordNotification records one notification dispatched for topic.
func RecordNotification(topic string) {
	NotificationsSent.WithLabelValues(topic).Inc()
}

// RecordAPIRequest records an HTTP request metric.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
