// Package dispatch runs blocking engine calls on a bounded worker pool and
// relays their results to a single consumer loop.
//
// Workers never touch job or queue state. When a call returns, the worker
// posts a zero-argument continuation onto the Loop's FIFO; the Loop drains
// that FIFO once per tick and runs continuations one at a time in the order
// they were posted. Everything that mutates conversion state therefore runs
// on one goroutine.
//
// Cancellation is cooperative. A cancelled Handle never interrupts its call;
// the call runs to completion and its continuation reports ErrCancelled in
// place of the result. No timeout is applied to calls, so a call that never
// returns holds its worker slot (and lane) until the process exits.
package dispatch
