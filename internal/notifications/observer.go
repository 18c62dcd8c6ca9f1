package notifications

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"voxbridge/internal/logging"
	"voxbridge/internal/queue"
)

// QueueNotifier publishes queue events. Publishing runs off the loop so a
// slow ntfy endpoint never stalls the queue.
type QueueNotifier struct {
	queue.NopObserver

	svc     Service
	logger  *slog.Logger
	timeout time.Duration
}

// NewQueueNotifier wraps svc as a queue observer.
func NewQueueNotifier(svc Service, logger *slog.Logger) *QueueNotifier {
	return &QueueNotifier{
		svc:     svc,
		logger:  logging.NewComponentLogger(logger, "notifications"),
		timeout: 15 * time.Second,
	}
}

func (q *QueueNotifier) RunStarted(_ string, jobs int) {
	q.publish(EventQueueStarted, Payload{"count": jobs})
}

func (q *QueueNotifier) JobFinished(job queue.Job) {
	if job.Status != queue.StatusFailed {
		return
	}
	q.publish(EventJobFailed, Payload{
		"file":   filepath.Base(job.SourcePath),
		"reason": job.FailureReason,
	})
}

func (q *QueueNotifier) RunFinished(s queue.Summary) {
	q.publish(EventQueueCompleted, Payload{
		"completed":    s.Completed,
		"failed":       s.Failed,
		"cancelled":    s.Cancelled,
		"remaining":    s.Remaining,
		"wasCancelled": s.WasCancelled,
		"elapsed":      s.Elapsed,
	})
}

func (q *QueueNotifier) publish(event Event, payload Payload) {
	if _, noop := q.svc.(noopService); noop || q.svc == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		defer cancel()
		if err := q.svc.Publish(ctx, event, payload); err != nil {
			logging.WarnWithContext(q.logger, "notification failed", "notification_failed",
				logging.String("event", string(event)),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.Error(err))
		}
	}()
}
