// Package history persists queue runs and per-job outcomes in SQLite.
//
// The store mirrors what a batch run reports to its observers: one row per
// run with its final counts, and one row per job that reached a terminal
// state. Recorder adapts the store to the queue observer interface so the
// CLI can list past runs with `voxbridge history`.
package history
