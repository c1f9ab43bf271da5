// Package metrics provides Prometheus metrics for the orchestrator service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts pipeline executions by final status.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bitware",
			Subsystem: "orchestrator",
			Name:      "executions_total",
			Help:      "Total number of pipeline executions by final status",
		},
		[]string{"template", "status"}, // "completed", "partial", "failed"
	)

	// ExecutionsActive tracks executions currently in the step loop.
	ExecutionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bitware",
			Subsystem: "orchestrator",
			Name:      "executions_active",
			Help:      "Number of pipeline executions currently running",
		},
	)

	// ExecutionDuration tracks end-to-end pipeline duration.
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bitware",
			Subsystem: "orchestrator",
			Name:      "execution_duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"template", "status"},
	)

	// ExecutionCostUSD accumulates worker-reported cost.
	ExecutionCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bitware",
			Subsystem: "orchestrator",
			Name:      "execution_cost_usd_total",
			Help:      "Total worker-reported cost in USD",
		},
		[]string{"template"},
	)

	// StepsTotal counts steps by outcome.
	StepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bitware",
			Subsystem: "orchestrator",
			Name:      "steps_total",
			Help:      "Total number of pipeline steps by outcome",
		},
		[]string{"worker", "outcome"}, // "succeeded", "failed", "skipped", "unavailable"
	)

	// WorkerCallDuration tracks outbound worker call latency.
	WorkerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bitware",
			Subsystem: "orchestrator",
			Name:      "worker_call_duration_seconds",
			Help:      "Worker call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"worker", "result"}, // result: success, or the failure tag
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bitware",
			Subsystem: "orchestrator",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bitware",
			Subsystem: "orchestrator",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RecorderOperations counts execution recorder operations.
	RecorderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bitware",
			Subsystem: "orchestrator",
			Name:      "recorder_operations_total",
			Help:      "Total number of execution recorder operations",
		},
		[]string{"operation", "result"}, // operation: save, get, list, archive; result: success, error, retry
	)

	// CatalogSeeded counts catalog entries upserted by the seeder.
	CatalogSeeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bitware",
			Subsystem: "orchestrator",
			Name:      "catalog_seeded_total",
			Help:      "Total number of catalog entries upserted",
		},
		[]string{"kind"}, // "worker", "template"
	)
)
