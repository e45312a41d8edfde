/*
Package orchestrator abstracts the external cluster orchestrator.

Windlass never schedules pods itself; it instructs an external orchestrator
to run workloads and polls it for live status. This package defines the
Client interface consumed by deployment creation, the reconciliation loop,
the rollout strategies, and the rollback coordinator, along with:

  - HTTPClient: the production adapter speaking JSON over HTTP to the
    orchestrator's control API
  - Fake: a deterministic in-memory implementation for tests, with
    scriptable statuses and recorded calls

# Phase Mapping

The orchestrator reports one of Pending, Deploying, Running, Failed or
RollingBack. How phases map onto deployment statuses is the reconciler's
concern (see pkg/reconciler); this package only transports them.
*/
package orchestrator
