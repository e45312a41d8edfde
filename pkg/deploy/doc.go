// Package deploy creates deployment records and drives the external
// orchestrator to materialize them.
//
// A deployment references a successful build and an environment. Create
// writes the record first and calls the orchestrator second: a rejected
// service call leaves a failed record behind with the error in its
// metadata, so every attempt is auditable. Accepted deployments enter the
// deploying state and are handed to the reconciliation loop, which owns
// all further status transitions.
//
// The currently serving deployment per environment is the single active
// one; its predecessors are kept as superseded records and form the
// rollback lineage that Previous walks.
package deploy
