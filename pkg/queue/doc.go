/*
Package queue implements the durable build job queue.

Build submissions are written to a BoltDB-backed queue before any worker
sees them, so accepted work survives process restarts. Delivery is
at-least-once: a consumer leases a job on Dequeue and must Ack it when the
build reaches a terminal state. If the consumer dies, the lease expires and
the job is redelivered.

# Delivery Semantics

	Enqueue ──► durable (bolt put + fsync)
	Dequeue ──► lease for 2m (default), attempts++
	Ack     ──► delete
	Nack    ──► lease cleared, immediate redelivery
	lease expiry ──► redelivered on next scan

Because redelivery can duplicate work, the job ID is the build ID and the
build's own status transition (pending → running, enforced with an
optimistic write) is the idempotency guard: a redelivered job for a build
that already left pending is skipped and acked.

Blocked consumers wait on an in-process wakeup channel so Enqueue latency
is not bounded by the poll interval; the 1s rescan exists only to pick up
expired leases.

# See Also

  - pkg/builder for the worker pool consuming this queue
  - pkg/storage for the record store the idempotency guard lives in
*/
package queue
