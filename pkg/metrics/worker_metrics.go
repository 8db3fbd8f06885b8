// Package metrics exposes prometheus collectors for the triage pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message outcomes
const (
	OutcomeIgnored  = "ignored"
	OutcomeNotified = "notified"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

var (
	// 메시지 처리 결과
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_messages_processed_total",
			Help: "Messages handled by the processor, by outcome",
		},
		[]string{"outcome"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_notifications_total",
			Help: "Outbound chat notifications, by result",
		},
		[]string{"result"}, // sent, failed, disabled
	)

	ClassifierRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_classifier_requests_total",
			Help: "Classifier calls, by result",
		},
		[]string{"result"}, // ok, unavailable, http_error, parse_error
	)

	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "triage_ratelimit_wait_seconds",
			Help:    "Time spent waiting for the classifier rate limiter",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 8), // 10ms to ~1.3s
		},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_batch_duration_seconds",
			Help:    "Duration of scheduled jobs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4min
		},
		[]string{"job"},
	)

	AnalysisEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_analysis_evicted_total",
			Help: "Stored analysis records removed by retention",
		},
	)

	LabelsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_labels_applied_total",
			Help: "Labels added to messages",
		},
		[]string{"label"},
	)

	AdminRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_admin_requests_total",
			Help: "Admin API requests by route and status class",
		},
		[]string{"method", "route", "status"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "triage_circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"breaker"},
	)
)

// RecordMessage counts one processed message.
func RecordMessage(outcome string) {
	MessagesProcessed.WithLabelValues(outcome).Inc()
}

// RecordNotification counts one notification attempt.
func RecordNotification(result string) {
	Notifications.WithLabelValues(result).Inc()
}

// RecordClassifier counts one classifier call.
func RecordClassifier(result string) {
	ClassifierRequests.WithLabelValues(result).Inc()
}

// RecordRateLimitWait observes a limiter wait.
func RecordRateLimitWait(d time.Duration) {
	RateLimitWait.Observe(d.Seconds())
}

// RecordJob observes the duration of a job run.
func RecordJob(job string, d time.Duration) {
	BatchDuration.WithLabelValues(job).Observe(d.Seconds())
}

// RecordLabel counts one applied label.
func RecordLabel(label string) {
	LabelsApplied.WithLabelValues(label).Inc()
}

// RecordBreakerState sets the state gauge of a circuit breaker (0 closed, 1 half-open, 2 open).
func RecordBreakerState(name string, state int) {
	BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordAdminRequest counts one admin API request. route is the registered pattern, not the raw path.
func RecordAdminRequest(method, route string, status int) {
	AdminRequests.WithLabelValues(method, route, fmt.Sprintf("%dxx", status/100)).Inc()
}
