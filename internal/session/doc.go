// Package session runs one audio file through validation, the transcript
// cache, and a recognition engine.
//
// A Session is driven entirely from the dispatcher loop: Start and Cancel
// must be called on the loop goroutine and every callback fires there.
// Blocking work (stat, ffprobe, engine calls) runs on dispatcher workers and
// comes back as continuations.
//
// States advance Idle -> Validating -> Rejected, or Idle -> Validating ->
// Converting -> Completed | Failed | Cancelled. A cache hit skips the engine
// and completes straight from Validating.
package session
