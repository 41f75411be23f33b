package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const defaultFilePrefix = "rana-cache-"

// File stores entries as JSON files under a directory. Keys hash to stable
// filenames, so arbitrary key material never reaches the filesystem.
type File struct {
	counters

	dir    string
	prefix string
	now    func() time.Time

	mu sync.Mutex
}

// NewFile builds a file cache rooted at dir (created if missing).
func NewFile(dir, prefix string) (*File, error) {
	if prefix == "" {
		prefix = defaultFilePrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &File{dir: dir, prefix: prefix, now: time.Now}, nil
}

func (f *File) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, f.prefix+hex.EncodeToString(sum[:])+".json")
}

// Get implements Cache. Expired entries are eagerly removed on access.
func (f *File) Get(_ context.Context, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("cache read failed", slog.String("path", path), slog.Any("error", err))
		}
		f.miss()
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		slog.Warn("cache entry corrupt, removing", slog.String("path", path), slog.Any("error", err))
		_ = os.Remove(path)
		f.miss()
		return nil, false
	}
	if e.expired(f.now()) {
		_ = os.Remove(path)
		f.miss()
		return nil, false
	}

	f.hit()
	return e.Data, true
}

// Set implements Cache. Write failures are logged and swallowed.
func (f *File) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := json.Marshal(newEntry(value, ttl, f.now()))
	if err != nil {
		slog.Warn("cache entry marshal failed", slog.Any("error", err))
		return
	}
	path := f.path(key)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		slog.Warn("cache write failed", slog.String("path", path), slog.Any("error", err))
	}
}

// Has implements Cache.
func (f *File) Has(ctx context.Context, key string) bool {
	f.mu.Lock()
	path := f.path(key)
	raw, err := os.ReadFile(path)
	f.mu.Unlock()
	if err != nil {
		return false
	}
	var e entry
	if json.Unmarshal(raw, &e) != nil {
		return false
	}
	if e.expired(f.now()) {
		f.mu.Lock()
		_ = os.Remove(path)
		f.mu.Unlock()
		return false
	}
	return true
}

// Delete implements Cache.
func (f *File) Delete(_ context.Context, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return os.Remove(f.path(key)) == nil
}

// Clear implements Cache. Only files carrying this cache's prefix are removed.
func (f *File) Clear(_ context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, path := range f.ownedFiles() {
		_ = os.Remove(path)
	}
}

// Cleanup implements Cache: sweeps expired files without waiting for access.
func (f *File) Cleanup(_ context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	removed := 0
	for _, path := range f.ownedFiles() {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var e entry
		if err := json.Unmarshal(raw, &e); err != nil || e.expired(now) {
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	return removed
}

// Stats implements Cache.
func (f *File) Stats() Stats {
	f.mu.Lock()
	size := len(f.ownedFiles())
	f.mu.Unlock()
	return f.snapshot(size)
}

// Len implements Cache.
func (f *File) Len(_ context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ownedFiles())
}

func (f *File) ownedFiles() []string {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		slog.Warn("cache dir scan failed", slog.String("dir", f.dir), slog.Any("error", err))
		return nil
	}
	var paths []string
	for _, de := range entries {
		if de.IsDir() || !strings.HasPrefix(de.Name(), f.prefix) {
			continue
		}
		paths = append(paths, filepath.Join(f.dir, de.Name()))
	}
	return paths
}
