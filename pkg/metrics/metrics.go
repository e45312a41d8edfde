package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Build pipeline metrics
	BuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windlass_builds_total",
			Help: "Total number of builds by terminal status",
		},
		[]string{"status"},
	)

	BuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "windlass_build_duration_seconds",
			Help:    "Build execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "windlass_build_queue_depth",
			Help: "Number of build jobs queued or in flight",
		},
	)

	// Deployment metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windlass_deployments_total",
			Help: "Total number of deployments by terminal status",
		},
		[]string{"status"},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "windlass_rollbacks_total",
			Help: "Total number of rollbacks performed",
		},
	)

	// Reconciliation metrics
	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "windlass_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "windlass_reconciliation_duration_seconds",
			Help:    "Reconciliation cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PollErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "windlass_poll_errors_total",
			Help: "Total number of transient orchestrator polling errors",
		},
	)

	// Rollout metrics
	GateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windlass_gate_decisions_total",
			Help: "Health gate decisions by strategy and outcome",
		},
		[]string{"strategy", "decision"},
	)

	TrafficToGreen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "windlass_traffic_to_green_percent",
			Help: "Current percentage of traffic routed to green by project",
		},
		[]string{"project"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windlass_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "windlass_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(BuildsTotal)
	prometheus.MustRegister(BuildDuration)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(PollErrorsTotal)
	prometheus.MustRegister(GateDecisionsTotal)
	prometheus.MustRegister(TrafficToGreen)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
