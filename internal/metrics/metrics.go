package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "centinela_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "centinela_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Evaluation metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "centinela_evaluations_total",
			Help: "Total number of alert evaluation passes",
		},
		[]string{"trigger"}, // trigger: event, interval, manual
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "centinela_evaluation_duration_seconds",
			Help:    "Time taken by a full evaluation pass",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	RuleCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "centinela_rule_candidates_total",
			Help: "Total number of candidates emitted per rule",
		},
		[]string{"rule"},
	)

	RuleFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "centinela_rule_failures_total",
			Help: "Total number of rule evaluations aborted by a recovered panic",
		},
		[]string{"rule"},
	)

	// Alert lifecycle metrics
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "centinela_alerts_created_total",
			Help: "Total number of alerts created",
		},
		[]string{"kind"},
	)

	AlertsDedupedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "centinela_alerts_deduped_total",
			Help: "Total number of candidates discarded as duplicates of active alerts",
		},
	)

	AlertsDismissedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "centinela_alerts_dismissed_total",
			Help: "Total number of alerts dismissed",
		},
	)

	AlertsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "centinela_alerts_purged_total",
			Help: "Total number of dismissed alerts purged",
		},
	)

	// Ingestion metrics
	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "centinela_events_consumed_total",
			Help: "Total number of storefront events consumed",
		},
		[]string{"type", "status"}, // status: applied, rejected, failed
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "centinela_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
