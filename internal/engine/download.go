package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"voxbridge/internal/logging"
)

const (
	defaultDownloadAttempts  = 3
	defaultDownloadBaseDelay = time.Second
	defaultDownloadMaxDelay  = 30 * time.Second
	downloadUserAgent        = "voxbridge-model-fetch"
)

// statusError reports a non-2xx download response.
type statusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("download %s: http %d", e.URL, e.StatusCode)
}

// Downloader fetches model files from a HuggingFace-style host with
// exponential backoff on transient failures.
type Downloader struct {
	baseURL   string
	client    *http.Client
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
	sleeper   func(time.Duration)
	logger    *slog.Logger
}

// DownloaderOption customizes a Downloader.
type DownloaderOption func(*Downloader)

// WithDownloadBackoff overrides the retry delays.
func WithDownloadBackoff(base, maxDelay time.Duration) DownloaderOption {
	return func(d *Downloader) {
		d.baseDelay = base
		d.maxDelay = maxDelay
	}
}

// WithDownloadSleeper overrides how retry sleeps are performed.
func WithDownloadSleeper(sleeper func(time.Duration)) DownloaderOption {
	return func(d *Downloader) { d.sleeper = sleeper }
}

// NewDownloader constructs a downloader. attempts below one use the default.
func NewDownloader(baseURL string, attempts int, timeout time.Duration, logger *slog.Logger, opts ...DownloaderOption) *Downloader {
	if attempts <= 0 {
		attempts = defaultDownloadAttempts
	}
	d := &Downloader{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		attempts:  attempts,
		baseDelay: defaultDownloadBaseDelay,
		maxDelay:  defaultDownloadMaxDelay,
		logger:    logging.NewComponentLogger(logger, "engine.download"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FileURL returns the resolve URL for one file of a model.
func (d *Downloader) FileURL(modelID, file string) string {
	return fmt.Sprintf("%s/%s/resolve/main/%s", d.baseURL, modelID, file)
}

// Fetch downloads one model file into dest. The body lands in
// dest+".download" and is renamed into place once complete.
func (d *Downloader) Fetch(ctx context.Context, modelID, file, dest string) error {
	target := d.FileURL(modelID, file)
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		err := d.fetchOnce(ctx, target, dest)
		if err == nil {
			return nil
		}
		lastErr = err
		delay, retry := d.retryDelay(ctx, err, attempt)
		if !retry {
			return err
		}
		d.logger.Warn("model download attempt failed",
			logging.String(logging.FieldEventType, "model_download_retry"),
			logging.String(logging.FieldErrorHint, "retrying with backoff"),
			logging.String("url", target),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := d.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("download %s: failed after %d attempts: %w", file, d.attempts, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, target, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("ensure model dir: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &statusError{URL: target, StatusCode: resp.StatusCode, RetryAfter: retryAfter}
	}

	tmp := dest + ".download"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(dest), err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	_ = os.Remove(dest)
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize %s: %w", filepath.Base(dest), err)
	}
	return nil
}

// retryDelay decides whether err is transient. Network failures, 429, and
// 5xx responses retry; context errors and other statuses do not.
func (d *Downloader) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if err == nil || attempt >= d.attempts {
		return 0, false
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return d.capDelay(statusErr.RetryAfter), true
			}
			return d.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return d.backoffDelay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return d.backoffDelay(attempt), true
	}
	return 0, false
}

// backoffDelay doubles from the base delay: attempt 1 waits base, attempt 2
// waits base*2, and so on up to the cap.
func (d *Downloader) backoffDelay(attempt int) time.Duration {
	if d.baseDelay <= 0 {
		return 0
	}
	delay := d.baseDelay
	for i := 1; i < attempt; i++ {
		if delay > d.maxDelay/2 {
			delay = d.maxDelay
			break
		}
		delay *= 2
	}
	return d.capDelay(delay)
}

func (d *Downloader) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if d.maxDelay > 0 && delay > d.maxDelay {
		return d.maxDelay
	}
	return delay
}

func (d *Downloader) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if d.sleeper != nil {
		d.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}
