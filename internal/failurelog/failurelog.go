package failurelog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Log is an append-only failure log. Safe for concurrent use.
type Log struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// New returns a log writing to path. The file and its directory are created
// on the first Record.
func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Path returns the backing file.
func (l *Log) Path() string { return l.path }

// Record appends "[YYYY-MM-DD HH:MM:SS] basename: message".
func (l *Log) Record(sourcePath, message string) error {
	if l == nil || l.path == "" {
		return nil
	}
	message = lineBreaks.Replace(strings.TrimSpace(message))
	line := fmt.Sprintf("[%s] %s: %s\n", l.now().Format(timeLayout), filepath.Base(sourcePath), message)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create failure log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open failure log: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write failure log: %w", err)
	}
	return f.Close()
}

// Entry is one parsed failure line.
type Entry struct {
	At      time.Time
	File    string
	Message string
	Raw     string
}

// Read returns the last limit entries, oldest first. A limit <= 0 returns all
// of them. A missing file yields no entries.
func (l *Log) Read(limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open failure log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		entries = append(entries, parse(raw))
		if limit > 0 && len(entries) > limit {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read failure log: %w", err)
	}
	return entries, nil
}

func parse(raw string) Entry {
	entry := Entry{Raw: raw, Message: raw}
	if !strings.HasPrefix(raw, "[") {
		return entry
	}
	end := strings.Index(raw, "] ")
	if end < 0 {
		return entry
	}
	at, err := time.ParseInLocation(timeLayout, raw[1:end], time.Local)
	if err != nil {
		return entry
	}
	entry.At = at
	rest := raw[end+2:]
	if file, msg, ok := strings.Cut(rest, ": "); ok {
		entry.File, entry.Message = file, msg
	} else {
		entry.Message = rest
	}
	return entry
}
