// Package app assembles the conversion core from configuration and runs it.
//
// An App owns the consumer loop, the worker dispatcher, the transcript cache
// and the engine registry. The CLI drives it through three entry points:
// Transcribe for single-item mode, Speak for synthesis, and Batch for queued
// runs guarded by a single-instance file lock. Close shuts the dispatcher
// down, waits for in-flight engine calls, and only then wipes the cache.
package app
