// Package notifications delivers queue events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Events cover
// queue start and completion plus per-job errors; the [notifications]
// switches decide which of them are sent.
//
// QueueNotifier adapts a Service to the queue observer interface so batch
// runs publish without the orchestrator knowing about transports.
package notifications
