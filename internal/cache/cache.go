// Package cache provides interchangeable response-cache backends.
//
// The cache is an optimization, not a source of truth: backend failures on
// Get/Set are logged and swallowed so callers always proceed as though the
// cache were empty. No method returns an error.
package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// Cache is the uniform contract shared by every backend.
type Cache interface {
	// Get returns the stored value, or absent on miss, expiry, or failure.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value under key for ttl (0 means no expiry). Failures are
	// a silent no-op.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Has reports presence without counting a hit or miss.
	Has(ctx context.Context, key string) bool
	// Delete removes key, reporting whether it was present.
	Delete(ctx context.Context, key string) bool
	// Clear removes every entry owned by this cache (and only those).
	Clear(ctx context.Context)
	// Cleanup sweeps expired entries without waiting for access, returning
	// the number removed.
	Cleanup(ctx context.Context) int
	// Stats reports hit/miss accounting since construction.
	Stats() Stats
	// Len reports the current entry count.
	Len(ctx context.Context) int
}

// Stats is a hit/miss accounting snapshot.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// counters is the shared atomic hit/miss tally embedded by backends.
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) hit()  { c.hits.Add(1) }
func (c *counters) miss() { c.misses.Add(1) }

func (c *counters) snapshot(size int) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	s := Stats{Hits: hits, Misses: misses, Size: size}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// entry is the stored envelope. A nil ExpiresAt means the entry never expires.
type entry struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func newEntry(value []byte, ttl time.Duration, now time.Time) entry {
	e := entry{
		Data:      append([]byte(nil), value...),
		CreatedAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		e.ExpiresAt = &expires
	}
	return e
}

// expired reports whether the entry must be treated as absent.
func (e entry) expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
