/*
Package types defines the core domain entities shared across all Windlass packages.

This package contains the data model for the deployment platform: projects and
their environments, builds produced from source revisions, deployments of those
builds into environments, and blue-green switch cycles between two deployments.
It has no dependencies on other Windlass packages and serves as the foundation
of the type system.

# Entity Relationships

	Project (1) ──── (*) Environment
	   │
	   └──── (*) Build ──── (*) Deployment ──── Environment
	                              │
	                              └──── BlueGreenDeployment (blue/green pair)

# Lifecycle States

Build statuses move strictly forward:

	pending → queued → running → {success, failed, cancelled}

Terminal statuses are final; CanTransition enforces the ordering and is the
single place the monotonic invariant lives.

Deployment statuses:

	pending → deploying → {active, failed}
	active → superseded        (when a newer deployment is promoted)

A superseded deployment is the historical form of an active one: it is kept
for audit and rollback lineage, so at most one deployment per
(project, environment) pair holds "active" at any time.

BlueGreen statuses:

	active_blue → switching → active_green      (switch completed)
	switching → active_blue                     (rollback)
	switching → paused → switching              (manual intervention)

# Versioning

Every stored entity carries a Version counter used for optimistic
concurrency. Writers read a record, mutate it, and submit it with the
version they read; the store rejects stale writes. See pkg/storage.

# See Also

  - pkg/storage for persistence of these entities
  - pkg/rollout for the strategy configs consumed by the rollout engine
  - pkg/bluegreen for the blue-green state machine
*/
package types
