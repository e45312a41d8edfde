/*
Package health computes healthy/unhealthy verdicts from metrics windows.

The evaluator is the single gating function behind every automated rollout
decision: canary step advancement, blue-green validation checks, gradual
switch increments, and the live snapshots in blue-green status. A
deployment is healthy only when all thresholds hold:

	errorRate    ≤ 0.05
	successRate  ≥ 0.95
	avgLatencyMs ≤ 1000

Thresholds ship as defaults and are overridable through configuration; the
evaluation window defaults to the trailing 5 minutes.

An evaluation error (metrics backend unreachable) is returned to the
caller, not folded into an unhealthy verdict; transient metrics outages
must not trigger rollbacks. Strategy code decides what to do with the
error, typically pausing rather than advancing.
*/
package health
