// Package ledger records per-request token usage and spend, with
// interchangeable storage backends.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CostRecord is one completed request's usage and spend.
type CostRecord struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	InputCostUSD     float64   `json:"input_cost_usd"`
	OutputCostUSD    float64   `json:"output_cost_usd"`
	TotalCostUSD     float64   `json:"total_cost_usd"`
	Cached           bool      `json:"cached"`
	LatencyMS        int64     `json:"latency_ms"`
	SessionID        string    `json:"session_id,omitempty"`
	RequestID        string    `json:"request_id,omitempty"`
}

// Filter narrows Query and Summarize results. Zero fields match everything.
type Filter struct {
	Provider  string
	Model     string
	SessionID string
	Cached    *bool
	Since     time.Time
	Until     time.Time
	Limit     int
}

func (f Filter) matches(r CostRecord) bool {
	if f.Provider != "" && r.Provider != f.Provider {
		return false
	}
	if f.Model != "" && r.Model != f.Model {
		return false
	}
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.Cached != nil && r.Cached != *f.Cached {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Summary aggregates matched records.
type Summary struct {
	Requests     int                  `json:"requests"`
	TotalTokens  int                  `json:"total_tokens"`
	TotalCostUSD float64              `json:"total_cost_usd"`
	CacheHits    int                  `json:"cache_hits"`
	AvgLatencyMS float64              `json:"avg_latency_ms"`
	ByProvider   map[string]Breakdown `json:"by_provider"`
	ByModel      map[string]Breakdown `json:"by_model"`
}

// Breakdown is a per-provider or per-model slice of a Summary.
type Breakdown struct {
	CostUSD  float64 `json:"cost_usd"`
	Tokens   int     `json:"tokens"`
	Requests int     `json:"requests"`
}

func summarize(records []CostRecord) Summary {
	s := Summary{
		ByProvider: make(map[string]Breakdown),
		ByModel:    make(map[string]Breakdown),
	}
	var latencySum int64
	for _, r := range records {
		s.Requests++
		s.TotalTokens += r.TotalTokens
		s.TotalCostUSD += r.TotalCostUSD
		if r.Cached {
			s.CacheHits++
		}
		latencySum += r.LatencyMS

		p := s.ByProvider[r.Provider]
		p.CostUSD += r.TotalCostUSD
		p.Tokens += r.TotalTokens
		p.Requests++
		s.ByProvider[r.Provider] = p

		m := s.ByModel[r.Model]
		m.CostUSD += r.TotalCostUSD
		m.Tokens += r.TotalTokens
		m.Requests++
		s.ByModel[r.Model] = m
	}
	if s.Requests > 0 {
		s.AvgLatencyMS = float64(latencySum) / float64(s.Requests)
	}
	return s
}

// Store is the uniform contract shared by every backend. Query returns
// records newest first.
type Store interface {
	Save(ctx context.Context, record *CostRecord) error
	Query(ctx context.Context, filter Filter) ([]CostRecord, error)
	Summarize(ctx context.Context, filter Filter) (Summary, error)
	TotalCost(ctx context.Context, filter Filter) (float64, error)
	// Cleanup removes records older than before, returning the number removed.
	Cleanup(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// stamp fills defaulted bookkeeping fields before a record is persisted.
func stamp(record *CostRecord, now func() time.Time) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = now()
	}
	if record.TotalTokens == 0 {
		record.TotalTokens = record.PromptTokens + record.CompletionTokens
	}
}
