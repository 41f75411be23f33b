package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// File persists records as a JSON array on disk. The whole file is rewritten
// atomically on every mutation, which is fine at the request rates a single
// client produces.
type File struct {
	mu      sync.Mutex
	path    string
	records []CostRecord
	now     func() time.Time
}

// NewFile opens (or creates) a JSON ledger at path.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	f := &File{path: path, now: time.Now}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &f.records); err != nil {
			return nil, fmt.Errorf("parse ledger %s: %w", path, err)
		}
	}
	return f, nil
}

// Save implements Store.
func (f *File) Save(_ context.Context, record *CostRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stamp(record, f.now)
	f.records = append(f.records, *record)
	return f.flushLocked()
}

// Query implements Store.
func (f *File) Query(_ context.Context, filter Filter) ([]CostRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filterRecords(f.records, filter), nil
}

// Summarize implements Store.
func (f *File) Summarize(ctx context.Context, filter Filter) (Summary, error) {
	filter.Limit = 0
	records, err := f.Query(ctx, filter)
	if err != nil {
		return Summary{}, err
	}
	return summarize(records), nil
}

// TotalCost implements Store.
func (f *File) TotalCost(ctx context.Context, filter Filter) (float64, error) {
	s, err := f.Summarize(ctx, filter)
	if err != nil {
		return 0, err
	}
	return s.TotalCostUSD, nil
}

// Cleanup implements Store.
func (f *File) Cleanup(_ context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.records[:0]
	removed := 0
	for _, r := range f.records {
		if r.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	f.records = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, f.flushLocked()
}

// Close implements Store.
func (f *File) Close() error { return nil }

// flushLocked writes the full record set through a temp file so a crash
// mid-write never corrupts the ledger.
func (f *File) flushLocked() error {
	raw, err := json.MarshalIndent(f.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
