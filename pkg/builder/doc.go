// Package builder implements the build pipeline: submission, the durable
// work queue hand-off, and the worker pool that drives the build toolchain.
//
// # Pipeline
//
//	SubmitBuild                    worker pool
//	    |                              |
//	    v                              v
//	[pending] --enqueue--> [queued] --claim--> [running] --> [success]
//	                                               |     \-> [failed]
//	                                               |     \-> [cancelled]
//	                                            toolchain.Run
//
// A build record is created pending, the job is written durably to the
// queue, and only then does the record flip to queued. Workers lease jobs
// from the queue; a lease that expires before Ack makes the job visible
// again, so delivery is at-least-once. The conditional transition from
// queued to running is what keeps execution effectively once: a
// redelivered job whose build already left the queued state is
// acknowledged and dropped.
//
// # Cancellation
//
// Pending and queued builds are cancelled by removing the job from the
// queue and finalizing the record. Running builds are cancelled by
// signalling the worker's build context; the worker observes the abort
// and finalizes the record itself. Terminal builds are not cancellable.
package builder
