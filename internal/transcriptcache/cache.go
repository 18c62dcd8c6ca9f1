package transcriptcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"voxbridge/internal/fileutil"
	"voxbridge/internal/logging"
	"voxbridge/internal/metrics"
)

// ErrWiped is returned by operations on a cache that has already been wiped.
var ErrWiped = errors.New("transcript cache already wiped")

// Entry is one cached recognition result.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	SourcePath  string    `json:"source_path"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

// Cache is a directory of one JSON file per fingerprint.
type Cache struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	// state guards the wiped flag; Put holds it shared so Wipe waits for
	// in-flight writes.
	state sync.RWMutex
	wiped bool

	locks sync.Map // fingerprint -> *sync.Mutex
}

// New creates a cache rooted at dir. The directory is created lazily on the
// first Put.
func New(dir string, logger *slog.Logger) *Cache {
	return &Cache{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "transcriptcache"),
		now:    time.Now,
	}
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// Fingerprint derives the cache key for path from its absolute location and
// modification time.
func Fingerprint(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}
	return FingerprintOf(abs, info.ModTime()), nil
}

// FingerprintOf derives a fingerprint from an already known path and mtime.
func FingerprintOf(absPath string, modTime time.Time) string {
	sum := sha256.Sum256([]byte(absPath + "\x00" + strconv.FormatInt(modTime.UnixNano(), 10)))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached entry for fingerprint. It never modifies the cache.
func (c *Cache) Get(fingerprint string) (Entry, bool) {
	fingerprint = strings.TrimSpace(fingerprint)
	if !validFingerprint(fingerprint) {
		return Entry{}, false
	}

	c.state.RLock()
	defer c.state.RUnlock()
	if c.wiped {
		c.logMiss(fingerprint, "wiped")
		return Entry{}, false
	}

	data, err := os.ReadFile(c.entryPath(fingerprint))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(c.logger, "transcript cache read failed", "transcript_cache_read_failed",
				logging.String("fingerprint", fingerprint),
				logging.Error(err),
				logging.String(logging.FieldImpact, "file will be converted again"))
		}
		c.logMiss(fingerprint, "not_cached")
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Fingerprint != fingerprint {
		logging.WarnWithContext(c.logger, "transcript cache entry unreadable", "transcript_cache_corrupt",
			logging.String("fingerprint", fingerprint),
			logging.String(logging.FieldImpact, "file will be converted again"))
		c.logMiss(fingerprint, "corrupt")
		return Entry{}, false
	}

	metrics.IncCacheRequest("hit")
	c.logger.Debug("transcript cache hit",
		logging.Args(append(logging.DecisionAttrs("transcript_cache", "hit", "fingerprint_match"),
			logging.String("fingerprint", fingerprint),
			logging.String("source", entry.SourcePath))...)...)
	return entry, true
}

// Put persists text under fingerprint. Safe for concurrent use from worker
// goroutines: writes to one fingerprint are serialized and land via atomic
// rename, so readers of other fingerprints are never affected.
func (c *Cache) Put(fingerprint, sourcePath, text string) error {
	fingerprint = strings.TrimSpace(fingerprint)
	if !validFingerprint(fingerprint) {
		return fmt.Errorf("invalid fingerprint %q", fingerprint)
	}

	c.state.RLock()
	defer c.state.RUnlock()
	if c.wiped {
		return ErrWiped
	}

	lock := c.lockFor(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	entry := Entry{
		Fingerprint: fingerprint,
		SourcePath:  sourcePath,
		Text:        text,
		CreatedAt:   c.now().UTC(),
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		metrics.IncCacheWrite("failed")
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := fileutil.WriteFileAtomic(c.entryPath(fingerprint), data, 0o644); err != nil {
		metrics.IncCacheWrite("failed")
		return fmt.Errorf("persist cache entry: %w", err)
	}

	metrics.IncCacheWrite("stored")
	c.logger.Debug("cached transcription",
		logging.String("fingerprint", fingerprint),
		logging.String("source", sourcePath),
		logging.Int("chars", len(text)))
	return nil
}

// Wipe removes every entry and the cache directory. It may be called once;
// later calls return ErrWiped.
func (c *Cache) Wipe() error {
	c.state.Lock()
	defer c.state.Unlock()
	if c.wiped {
		return ErrWiped
	}
	c.wiped = true

	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("remove cache directory: %w", err)
	}
	c.logger.Info("transcript cache wiped", logging.String("dir", c.dir))
	return nil
}

// Wiped reports whether Wipe has run.
func (c *Cache) Wiped() bool {
	c.state.RLock()
	defer c.state.RUnlock()
	return c.wiped
}

// Count returns the number of stored entries.
func (c *Cache) Count() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), ".json") && !strings.HasPrefix(entry.Name(), ".") {
			count++
		}
	}
	return count, nil
}

// SizeBytes returns the disk space used by the cache directory.
func (c *Cache) SizeBytes() (int64, error) {
	return fileutil.DirSize(c.dir)
}

func (c *Cache) entryPath(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".json")
}

func validFingerprint(fingerprint string) bool {
	return fingerprint != "" && !strings.ContainsAny(fingerprint, `/\`) && !strings.HasPrefix(fingerprint, ".")
}

func (c *Cache) lockFor(fingerprint string) *sync.Mutex {
	lock, _ := c.locks.LoadOrStore(fingerprint, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (c *Cache) logMiss(fingerprint, reason string) {
	metrics.IncCacheRequest("miss")
	c.logger.Debug("transcript cache miss",
		logging.Args(append(logging.DecisionAttrs("transcript_cache", "miss", reason),
			logging.String("fingerprint", fingerprint))...)...)
}
