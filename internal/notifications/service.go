package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voxbridge/internal/config"
)

const userAgent = "voxbridge/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventQueueStarted   Event = "queue_started"
	EventQueueCompleted Event = "queue_completed"
	EventJobFailed      Event = "job_failed"
	EventError          Event = "error"
	EventTest           Event = "test"
)

// Payload carries event fields by name.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		queue:         cfg.Notifications.Queue,
		errors:        cfg.Notifications.Errors,
		queueMinItems: cfg.Notifications.QueueMinItems,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	queue         bool
	errors        bool
	queueMinItems int
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) render(event Event, payload Payload) (message, bool) {
	switch event {
	case EventQueueStarted:
		count := intValue(payload["count"])
		if !n.queue || count < n.queueMinItems {
			return message{}, false
		}
		return message{
			title: "voxbridge - Queue Started",
			body:  fmt.Sprintf("Started processing queue with %d items", count),
			tags:  []string{"voxbridge", "queue", "started"},
		}, true
	case EventQueueCompleted:
		completed := intValue(payload["completed"])
		failed := intValue(payload["failed"])
		cancelled := intValue(payload["cancelled"])
		if !n.queue || completed+failed+cancelled < n.queueMinItems {
			return message{}, false
		}
		elapsed := formatElapsed(durationValue(payload["elapsed"]))
		msg := message{tags: []string{"voxbridge", "queue", "completed"}}
		switch {
		case boolValue(payload["wasCancelled"]):
			msg.title = "voxbridge - Queue Cancelled"
			msg.body = fmt.Sprintf("Queue cancelled after %s: %d succeeded, %d failed, %d left queued",
				elapsed, completed, failed, intValue(payload["remaining"]))
		case failed == 0:
			msg.title = "voxbridge - Queue Complete"
			msg.body = fmt.Sprintf("Queue processing complete: %d items processed in %s", completed, elapsed)
		default:
			msg.title = "voxbridge - Queue Complete (with errors)"
			msg.body = fmt.Sprintf("Queue processing complete: %d succeeded, %d failed in %s", completed, failed, elapsed)
		}
		return msg, true
	case EventJobFailed:
		if !n.errors {
			return message{}, false
		}
		return message{
			title: "voxbridge - Conversion Failed",
			body:  fmt.Sprintf("%s: %s", stringValue(payload["file"]), stringValue(payload["reason"])),
			tags:  []string{"voxbridge", "job", "failed"},
		}, true
	case EventError:
		if !n.errors {
			return message{}, false
		}
		var b strings.Builder
		b.WriteString("Error")
		if label := stringValue(payload["context"]); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if text := stringValue(payload["error"]); text != "" {
			b.WriteString(text)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "voxbridge - Error",
			body:     b.String(),
			tags:     []string{"voxbridge", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "voxbridge - Test",
			body:     "Notification system test",
			tags:     []string{"voxbridge", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case error:
		return strings.TrimSpace(t.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func intValue(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func durationValue(v any) time.Duration {
	d, _ := v.(time.Duration)
	return d
}
