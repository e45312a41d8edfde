// Package bluegreen runs blue-green switch cycles.
//
// Blue is the project's active production deployment; green is a
// validated candidate running next to it. A cycle moves through:
//
//	active_blue --validation--> switching --100%--> active_green
//	     ^                          |
//	     |       rollback           v
//	     +--------------------- (paused)
//
// Initialization optionally routes a sliver of traffic to green for a
// validation period. The validation gate then decides: a healthy green
// with auto-switch on moves traffic over, immediately or in gradual
// fixed increments spread across the switch duration; an unhealthy green
// rolls back to blue or pauses for an operator, per configuration.
// Metrics being unavailable pauses rather than rolls back.
//
// Every timer-driven step is an exported idempotent operation that
// re-reads the stored record before acting, so a stale or duplicate
// firing is a no-op. Completing the switch activates green and demotes
// blue to superseded, preserving rollback lineage.
package bluegreen
