package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voxbridge/internal/logging"
	"voxbridge/internal/metrics"
)

// DefaultTick is the consumer loop interval used when none is configured.
const DefaultTick = 100 * time.Millisecond

// Loop is the single consumer of continuations.
type Loop struct {
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending []func()

	// drainMu keeps continuations from ever running concurrently, even when
	// Drain is called from outside Run.
	drainMu sync.Mutex
}

// NewLoop creates a loop that drains every interval.
func NewLoop(interval time.Duration, logger *slog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultTick
	}
	return &Loop{
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "loop"),
	}
}

// Interval returns the tick interval.
func (l *Loop) Interval() time.Duration { return l.interval }

// Post appends fn to the continuation FIFO. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
}

// Pending returns the number of continuations waiting for the next tick.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Drain runs one tick: every continuation queued before the call, in order.
// Continuations posted while draining run on the next tick.
func (l *Loop) Drain() int {
	l.drainMu.Lock()
	defer l.drainMu.Unlock()

	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, fn := range batch {
		l.invoke(fn)
	}
	if len(batch) > 0 {
		metrics.AddContinuations(len(batch))
	}
	return len(batch)
}

// Run drains on every tick until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Drain()
		}
	}
}

// After posts fn to the loop once d has elapsed. The returned stop function
// prevents the post if it has not happened yet.
func (l *Loop) After(d time.Duration, fn func()) (stop func() bool) {
	if d <= 0 {
		l.Post(fn)
		return func() bool { return false }
	}
	timer := time.AfterFunc(d, func() { l.Post(fn) })
	return timer.Stop
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(l.logger, "continuation panicked", "continuation_panic",
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldErrorHint, "this is a bug; the loop keeps running"))
		}
	}()
	fn()
}
