// Package reconciler converges stored deployment status on the live
// status the orchestrator reports.
//
// Every non-terminal deployment sits in a tracked set. A fixed-interval
// loop polls the orchestrator for each one and maps its phase:
//
//	Running, all replicas ready -> active
//	Failed                      -> failed
//	anything in flight          -> deploying
//
// A poll error is treated as transient: the record keeps its status and
// the next cycle retries, so a flaky orchestrator never fails a healthy
// deployment. When a deployment turns active its predecessor in the same
// environment is demoted to superseded, keeping the one-active-per-
// environment invariant and preserving rollback lineage. Terminal
// deployments leave the tracked set.
//
// Writes go through optimistic versioning. A conflicting write means a
// strategy or rollback moved the record first; the cycle skips it and
// re-reads next time.
package reconciler
