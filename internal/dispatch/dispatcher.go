package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"voxbridge/internal/logging"
	"voxbridge/internal/metrics"
	"voxbridge/internal/services"
)

// Lane is an exclusive execution slot shared by all tasks of one kind.
type Lane string

const (
	// LaneNone tasks only need a free worker.
	LaneNone Lane = ""
	// LaneConversion admits one recognition call at a time.
	LaneConversion Lane = "conversion"
	// LaneSynthesis admits one synthesis call at a time.
	LaneSynthesis Lane = "synthesis"
)

// DefaultPoolSize is the worker count used when none is configured.
const DefaultPoolSize = 3

// ErrClosed is returned by Submit after Shutdown has begun.
var ErrClosed = errors.New("dispatcher is shut down")

// Task is one blocking call plus the continuation that receives its result.
type Task struct {
	Name string
	Lane Lane
	// Run executes on a worker goroutine. Its context carries the submitter's
	// values but is never cancelled.
	Run func(ctx context.Context) (any, error)
	// Done executes on the loop goroutine.
	Done func(result any, err error)
}

// Handle tracks a submitted task.
type Handle struct {
	id        uint64
	name      string
	lane      Lane
	cancelled atomic.Bool
	started   atomic.Bool
	settled   chan struct{}
}

// ID returns the dispatcher-unique task number.
func (h *Handle) ID() uint64 { return h.id }

// Cancel requests that the task's result be discarded. A running call is not
// interrupted.
func (h *Handle) Cancel() { h.cancelled.Store(true) }

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

// Started reports whether a worker has picked the task up.
func (h *Handle) Started() bool { return h.started.Load() }

// Settled is closed after the task's continuation has run on the loop.
func (h *Handle) Settled() <-chan struct{} { return h.settled }

type queuedTask struct {
	ctx    context.Context
	task   Task
	handle *Handle
}

// Dispatcher is a fixed-size worker pool with exclusive lanes.
type Dispatcher struct {
	loop   *Loop
	logger *slog.Logger
	size   int

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []*queuedTask
	busyLanes map[Lane]bool
	inflight  int
	closed    bool
	nextID    uint64
	releases  []func() error
	released  bool

	workers sync.WaitGroup
}

// New starts size workers that post results to loop.
func New(loop *Loop, size int, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = DefaultPoolSize
	}
	d := &Dispatcher{
		loop:      loop,
		logger:    logging.NewComponentLogger(logger, "dispatch"),
		size:      size,
		busyLanes: make(map[Lane]bool),
	}
	d.cond = sync.NewCond(&d.mu)
	for i := range size {
		d.spawn(i)
	}
	return d
}

// Size returns the configured worker count.
func (d *Dispatcher) Size() int { return d.size }

// Loop returns the consumer loop results are posted to.
func (d *Dispatcher) Loop() *Loop { return d.loop }

// Submit queues task and returns immediately.
func (d *Dispatcher) Submit(ctx context.Context, task Task) (*Handle, error) {
	if task.Run == nil {
		return nil, errors.New("dispatch: task has no Run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	d.nextID++
	handle := &Handle{id: d.nextID, name: task.Name, lane: task.Lane, settled: make(chan struct{})}
	d.queue = append(d.queue, &queuedTask{
		ctx:    context.WithoutCancel(ctx),
		task:   task,
		handle: handle,
	})
	metrics.SetDispatchPending(len(d.queue))
	d.cond.Broadcast()

	d.logger.Debug("task submitted",
		logging.String("task", task.Name),
		logging.String(logging.FieldLane, string(task.Lane)),
		logging.Int("pending", len(d.queue)))
	return handle, nil
}

// Stats reports the number of running and waiting tasks.
func (d *Dispatcher) Stats() (inflight, pending int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight, len(d.queue)
}

// LaneBusy reports whether a task currently holds lane.
func (d *Dispatcher) LaneBusy(lane Lane) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busyLanes[lane]
}

// OnRelease registers a hook that Shutdown runs after every worker has
// stopped. Hooks run in reverse registration order.
func (d *Dispatcher) OnRelease(fn func() error) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.releases = append(d.releases, fn)
	d.mu.Unlock()
}

// Shutdown stops accepting work, cancels tasks that have not started, waits
// for every in-flight call to return, and then runs the release hooks. If ctx
// ends first Shutdown returns an error and releases nothing; it may be called
// again later.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, queued := range d.queue {
			queued.handle.Cancel()
		}
		d.cond.Broadcast()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		inflight, _ := d.Stats()
		logging.WarnWithContext(d.logger, "dispatcher shutdown interrupted", "dispatch_shutdown_blocked",
			logging.Int("inflight", inflight),
			logging.String(logging.FieldImpact, "shared resources were not released"),
			logging.String(logging.FieldErrorHint, "an engine call is still running; retry shutdown or restart the process"))
		return fmt.Errorf("dispatcher shutdown: %d call(s) still running: %w", inflight, ctx.Err())
	}

	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return nil
	}
	d.released = true
	hooks := d.releases
	d.releases = nil
	d.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.logger.Debug("dispatcher shut down", logging.Int("release_hooks", len(hooks)))
	return errors.Join(errs...)
}

func (d *Dispatcher) spawn(slot int) {
	d.workers.Add(1)
	go d.worker(slot)
}

func (d *Dispatcher) worker(slot int) {
	exitedNormally := false
	defer func() {
		if !exitedNormally {
			// The goroutine was torn down mid-task (runtime.Goexit). Keep the
			// pool at full strength.
			d.spawn(slot)
		}
		d.workers.Done()
	}()
	for {
		queued, ok := d.next()
		if !ok {
			exitedNormally = true
			return
		}
		d.execute(queued)
	}
}

// next blocks until a task whose lane is free is available, or the
// dispatcher is closed and drained.
func (d *Dispatcher) next() (*queuedTask, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		for i, queued := range d.queue {
			lane := queued.task.Lane
			if lane != LaneNone && d.busyLanes[lane] {
				continue
			}
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			if lane != LaneNone {
				d.busyLanes[lane] = true
			}
			d.inflight++
			metrics.SetDispatchPending(len(d.queue))
			metrics.SetDispatchInflight(d.inflight)
			return queued, true
		}
		if d.closed && len(d.queue) == 0 {
			return nil, false
		}
		d.cond.Wait()
	}
}

func (d *Dispatcher) execute(queued *queuedTask) {
	handle := queued.handle
	handle.started.Store(true)

	var (
		result    any
		err       error
		completed bool
		outcome   = "ok"
	)
	defer func() {
		if !completed {
			result = nil
			if r := recover(); r != nil {
				outcome = "panic"
				err = services.Wrap(services.ErrWorkerLifecycle, "dispatch", queued.task.Name,
					"conversion process terminated unexpectedly", fmt.Errorf("panic: %v", r))
			} else {
				outcome = "exited"
				err = services.Wrap(services.ErrWorkerLifecycle, "dispatch", queued.task.Name,
					"conversion process terminated unexpectedly", nil)
			}
			logging.ErrorWithContext(d.logger, "worker terminated without a result", "worker_lifecycle",
				logging.String("task", queued.task.Name),
				logging.String(logging.FieldLane, string(queued.task.Lane)),
				logging.Error(err))
		} else if err != nil {
			outcome = "error"
		}
		d.release(queued)
		d.post(queued, result, err, outcome)
	}()

	if handle.Cancelled() {
		completed = true
		err = services.ErrCancelled
		outcome = "cancelled"
		return
	}
	result, err = queued.task.Run(queued.ctx)
	completed = true
}

func (d *Dispatcher) release(queued *queuedTask) {
	d.mu.Lock()
	if lane := queued.task.Lane; lane != LaneNone {
		d.busyLanes[lane] = false
	}
	d.inflight--
	metrics.SetDispatchInflight(d.inflight)
	d.cond.Broadcast()
	d.mu.Unlock()
}

func (d *Dispatcher) post(queued *queuedTask, result any, err error, outcome string) {
	handle := queued.handle
	d.loop.Post(func() {
		defer close(handle.settled)
		if handle.Cancelled() && !errors.Is(err, services.ErrWorkerLifecycle) {
			result, err = nil, services.ErrCancelled
			outcome = "cancelled"
		}
		metrics.IncDispatchTask(string(queued.task.Lane), outcome)
		if queued.task.Done != nil {
			queued.task.Done(result, err)
		}
	})
}
