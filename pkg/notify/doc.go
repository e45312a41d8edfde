/*
Package notify delivers platform events to interested parties.

Components publish through the Notifier interface: deployment creation,
deployment status changes, and alerts (rollbacks, paused switches). All
delivery is fire-and-forget: a failed notification is logged and dropped,
never allowed to block or fail reconciliation or a rollout.

Two implementations exist and are usually combined with Multi:

  - Broker: an in-process pub/sub hub with buffered per-subscriber
    channels, backing the event stream API
  - WebhookSink: asynchronous JSON POSTs to an external webhook endpoint

Discard is available for tests.
*/
package notify
