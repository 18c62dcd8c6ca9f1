// Package queue owns the batch of conversion jobs and drives them through
// sessions one at a time, strictly in FIFO order.
//
// The Orchestrator is single-owner state: every mutating method and every
// observer callback runs on the dispatcher loop goroutine. Other goroutines
// read a copy through Snapshot. A run moves Idle -> Running -> Idle; a failed
// or rejected job is recorded and skipped so the batch continues, and Cancel
// stops the run after the in-flight job settles while leaving unprocessed jobs
// queued for a later Run.
package queue
