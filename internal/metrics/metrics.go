// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "endpoint"})

	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_transfers_total",
		Help: "Checkout transfers by outcome",
	}, []string{"outcome"})

	TransferDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wallet_transfer_duration_seconds",
		Help:    "Latency of the atomic transfer unit",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 3, 10},
	})

	ReleasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_settlement_releases_total",
		Help: "Pending-to-available releases by outcome",
	}, []string{"outcome"})

	CancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_cancellations_total",
		Help: "Resolved cancellation requests by status",
	}, []string{"status"})

	ReversalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_reversals_total",
		Help: "Reversed ledger entries by kind",
	}, []string{"kind"})

	RollbackFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_rollback_failures_total",
		Help: "Compensations that failed and need manual intervention",
	}, []string{"operation"})
)
