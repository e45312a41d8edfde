/*
Package storage provides BoltDB-backed persistence for Windlass platform state.

The storage package implements the Store interface using BoltDB, providing
ACID transactions for projects, environments, builds, deployments, and
blue-green cycles. All data is serialized as JSON and stored in separate
buckets.

# Architecture

	┌──────────────── BOLTDB STORAGE ─────────────────┐
	│                                                  │
	│  BoltStore                                       │
	│  - File: <dataDir>/windlass.db                   │
	│  - Read: db.View()  - concurrent snapshots       │
	│  - Write: db.Update() - serialized, fsync'd      │
	│                                                  │
	│  Buckets                                         │
	│  ┌─────────────────────────────┐                 │
	│  │ projects      (Project ID)  │                 │
	│  │ environments  (Env ID)      │                 │
	│  │ builds        (Build ID)    │                 │
	│  │ deployments   (Deploy ID)   │                 │
	│  │ bluegreen     (Cycle ID)    │                 │
	│  └─────────────────────────────┘                 │
	└──────────────────────────────────────────────────┘

# Optimistic Concurrency

The store is the single source of truth and multiple actors race against
the same records: the reconciliation loop, scheduled rollout ticks, and
manual API calls. Every record carries a Version counter. Update operations
are conditional: the submitted record must carry the version that was read,
the store increments it atomically inside the write transaction, and a
stale submission fails with ErrVersionConflict. Callers retry from a fresh
read instead of overwriting newer state.

Create operations initialize Version to 1. Read-only operations never
consult external systems; they always return last-persisted state.

# Query Patterns

Secondary lookups (project by slug, environment by name, deployments by
environment) are full-bucket scans with in-memory filtering, which is
adequate for the entity counts a single deployment platform instance
manages. Deployment lists are ordered newest first; build listing is
paginated (limit/offset) and reports the pre-pagination total.

# See Also

  - pkg/types for the entity definitions
  - pkg/queue for the durable build queue (separate bucket set, same file
    discipline)
  - BoltDB documentation: https://github.com/etcd-io/bbolt
*/
package storage
