// Package api exposes the platform over HTTP/JSON.
//
// Routes live under /v1 and speak the service layer's request and
// response types directly. Errors map to status codes through their
// classification: not-found 404, validation 400, conflict 409, failed
// dependency and everything else 500. BuildNotCancellable and
// NoPreviousDeployment are surfaced as 400 regardless of class. The body
// always carries a stable machine-readable code alongside the message.
//
// /healthz, /readyz and /metrics sit outside the versioned prefix.
package api
