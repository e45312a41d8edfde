/*
Package metricsvc is the client for the external metrics backend.

The health evaluator needs per-deployment success rate, error rate, latency
and connection counts over a time window. This package defines the Service
interface those numbers come through, a Prometheus-backed implementation,
and a scriptable Fake for tests.

Metrics collection itself is out of scope: Windlass only consumes the
numbers, it does not scrape or store them.
*/
package metricsvc
