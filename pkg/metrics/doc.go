/*
Package metrics exposes Windlass's own observability surface.

Prometheus collectors are declared as package-level variables and
registered in init, covering the build pipeline (counts, durations, queue
depth), deployments and rollbacks, reconciliation cycles, rollout gate
decisions, and API traffic. Handler() serves them for scraping.

The package also tracks component-level health for the /healthz and
/readyz endpoints: components register themselves on startup and update
their state as they run; readiness requires store, queue, and reconciler.

Note this is distinct from pkg/metricsvc (the client for *deployment*
traffic metrics) and pkg/health (the rollout gating evaluator).

# Usage

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)
	metrics.ReconciliationCyclesTotal.Inc()
*/
package metrics
