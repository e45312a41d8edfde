// Package rollback restores the deployment that was active immediately
// before the current one.
//
// The coordinator accepts one request shape everywhere: the current
// deployment named directly by ID, or resolved from a project (by ID or
// slug) plus an environment name. Target resolution is all-or-nothing
// and happens before the orchestrator is touched: a request that cannot
// name a previous deployment fails without any cluster side effects.
//
// A rollback never rewrites history. The restored state gets a fresh
// deployment record carrying lineage metadata (what it rolled back from
// and to, and why), and the reconciliation loop drives it to active like
// any other deployment.
package rollback
