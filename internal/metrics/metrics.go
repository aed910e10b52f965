// Package metrics holds the Prometheus collectors for the session orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telesession_active_sessions",
			Help: "Number of sessions currently in the active state",
		},
	)

	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telesession_sessions_started_total",
			Help: "Total number of sessions that reached the active state",
		},
	)

	SessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telesession_sessions_ended_total",
			Help: "Total number of sessions that reached a terminal state, by termination reason",
		},
		[]string{"reason"},
	)

	SessionStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telesession_state_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	TransportRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telesession_transport_retries_total",
			Help: "Transport calls that failed and were retried",
		},
		[]string{"operation"},
	)

	TransportFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telesession_transport_failures_total",
			Help: "Transport calls that failed after the retry budget was spent",
		},
		[]string{"operation"},
	)

	RecordingDenials = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telesession_recording_denials_total",
			Help: "Recording start attempts rejected because consent was missing",
		},
	)

	AuditPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telesession_audit_persist_failures_total",
			Help: "Audit records that could not be written to the compliance store",
		},
	)

	InvitationDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telesession_invitation_delivery_failures_total",
			Help: "Invitation notifications that could not be delivered",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telesession_http_requests_total",
			Help: "HTTP requests served, by route template, method and status code",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telesession_http_request_duration_seconds",
			Help:    "HTTP request latency by route template and method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// RecordStateTransition also keeps the active gauge in step with the active state.
func RecordStateTransition(fromState, toState string) {
	SessionStateTransitions.WithLabelValues(fromState, toState).Inc()
	if toState == "active" {
		SessionsStarted.Inc()
		ActiveSessions.Inc()
	}
	if fromState == "active" {
		ActiveSessions.Dec()
	}
}

func RecordSessionEnded(reason string) {
	SessionsEnded.WithLabelValues(reason).Inc()
}
