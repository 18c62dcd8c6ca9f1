// Package statusapi serves a read-only HTTP view of a running batch: queue
// snapshot, registered engines, dispatcher load, and Prometheus metrics.
//
// The server is optional and only starts when paths.status_bind is set.
package statusapi
