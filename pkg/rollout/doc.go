// Package rollout drives deployments into service according to the
// strategy they were created with.
//
// # Strategies
//
//	rolling  step-counted instance replacement; the orchestrator moves
//	         instances, this side tracks progress and decides completion
//	canary   stepped traffic shifting gated on live health after each
//	         observation window
//
// Canary gates run on a keyed scheduler. Every gate re-reads persisted
// state before acting, so a duplicate or stale firing is harmless. A
// gate's verdict is promote, rollback, or pause:
//
//	healthy   + auto_promote      -> next traffic step
//	unhealthy + rollback_on_error -> traffic restored to stable, failed
//	otherwise                     -> paused, awaiting an operator
//
// Metrics being unavailable is treated as unknown rather than unhealthy
// and pauses the canary instead of rolling it back.
package rollout
