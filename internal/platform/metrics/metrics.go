// Package metrics holds the Prometheus collectors shared across components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linebroker_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linebroker_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
	}, []string{"method", "route"})

	DependencyCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linebroker_dependency_calls_total",
		Help: "Calls to external dependencies by outcome",
	}, []string{"dependency", "outcome"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "linebroker_circuit_breaker_state",
		Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open)",
	}, []string{"dependency"})

	BreakerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linebroker_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions",
	}, []string{"dependency", "from", "to"})

	LedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linebroker_ledger_entries_total",
		Help: "Ledger entries written, by kind",
	}, []string{"kind"})

	TransactionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linebroker_transaction_transitions_total",
		Help: "Transaction status transitions, by kind and target status",
	}, []string{"kind", "status"})

	OutboxArchivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linebroker_outbox_archived_total",
		Help: "Lifecycle events moved from the outbox to the event archive",
	})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linebroker_settlements_total",
		Help: "Processed payment settlement events by result",
	}, []string{"result"})
)
