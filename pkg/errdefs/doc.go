/*
Package errdefs defines the error taxonomy shared by all Windlass services.

Every failing mutation returns an *Error carrying a stable machine-readable
code and a human-readable message. The kind classifies propagation behavior:

  - Validation: malformed or missing input, rejected before any write
  - NotFound: a referenced entity is absent
  - Conflict: an illegal state transition (cancelling a terminal build,
    advancing a rollout past 100%)
  - Dependency: the orchestrator or metrics service is unreachable or erroring
  - Internal: anything unexpected

Errors are errors.Is/As compatible; services wrap causes so callers can
inspect both the code and the underlying failure. HTTPStatus maps kinds to
the status codes the API layer writes.
*/
package errdefs
