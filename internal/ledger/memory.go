package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps records in process. Useful for tests and ephemeral sessions.
type Memory struct {
	mu      sync.Mutex
	records []CostRecord
	now     func() time.Time
}

// NewMemory builds an empty in-process store.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, record *CostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp(record, m.now)
	m.records = append(m.records, *record)
	return nil
}

// Query implements Store.
func (m *Memory) Query(_ context.Context, filter Filter) ([]CostRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filterRecords(m.records, filter), nil
}

// Summarize implements Store.
func (m *Memory) Summarize(ctx context.Context, filter Filter) (Summary, error) {
	filter.Limit = 0
	records, err := m.Query(ctx, filter)
	if err != nil {
		return Summary{}, err
	}
	return summarize(records), nil
}

// TotalCost implements Store.
func (m *Memory) TotalCost(ctx context.Context, filter Filter) (float64, error) {
	s, err := m.Summarize(ctx, filter)
	if err != nil {
		return 0, err
	}
	return s.TotalCostUSD, nil
}

// Cleanup implements Store.
func (m *Memory) Cleanup(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	removed := 0
	for _, r := range m.records {
		if r.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return removed, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// filterRecords applies filter and orders the result newest first.
func filterRecords(records []CostRecord, filter Filter) []CostRecord {
	var out []CostRecord
	for _, r := range records {
		if filter.matches(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
