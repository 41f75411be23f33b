package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cost_records (
	id TEXT PRIMARY KEY,
	timestamp TIMESTAMP NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	input_cost_usd REAL NOT NULL,
	output_cost_usd REAL NOT NULL,
	total_cost_usd REAL NOT NULL,
	cached INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	session_id TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_cost_records_timestamp ON cost_records(timestamp);
CREATE INDEX IF NOT EXISTS idx_cost_records_provider ON cost_records(provider);
CREATE INDEX IF NOT EXISTS idx_cost_records_session ON cost_records(session_id);
`

// SQLite persists records in a local SQLite database.
type SQLite struct {
	conn *sql.DB
	now  func() time.Time
}

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &SQLite{conn: conn, now: time.Now}, nil
}

// Save implements Store.
func (s *SQLite) Save(ctx context.Context, record *CostRecord) error {
	stamp(record, s.now)
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO cost_records (
			id, timestamp, provider, model,
			prompt_tokens, completion_tokens, total_tokens,
			input_cost_usd, output_cost_usd, total_cost_usd,
			cached, latency_ms, session_id, request_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Timestamp.UTC(),
		record.Provider,
		record.Model,
		record.PromptTokens,
		record.CompletionTokens,
		record.TotalTokens,
		record.InputCostUSD,
		record.OutputCostUSD,
		record.TotalCostUSD,
		record.Cached,
		record.LatencyMS,
		record.SessionID,
		record.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert cost record: %w", err)
	}
	return nil
}

// Query implements Store.
func (s *SQLite) Query(ctx context.Context, filter Filter) ([]CostRecord, error) {
	query := `
		SELECT id, timestamp, provider, model,
		       prompt_tokens, completion_tokens, total_tokens,
		       input_cost_usd, output_cost_usd, total_cost_usd,
		       cached, latency_ms, session_id, request_id
		FROM cost_records`
	where, args := filterClauses(filter)
	query += where + " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cost records: %w", err)
	}
	defer rows.Close()

	var records []CostRecord
	for rows.Next() {
		var r CostRecord
		if err := rows.Scan(
			&r.ID,
			&r.Timestamp,
			&r.Provider,
			&r.Model,
			&r.PromptTokens,
			&r.CompletionTokens,
			&r.TotalTokens,
			&r.InputCostUSD,
			&r.OutputCostUSD,
			&r.TotalCostUSD,
			&r.Cached,
			&r.LatencyMS,
			&r.SessionID,
			&r.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan cost record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cost records: %w", err)
	}
	return records, nil
}

// Summarize implements Store.
func (s *SQLite) Summarize(ctx context.Context, filter Filter) (Summary, error) {
	filter.Limit = 0
	records, err := s.Query(ctx, filter)
	if err != nil {
		return Summary{}, err
	}
	return summarize(records), nil
}

// TotalCost implements Store. Aggregated server side so large ledgers never
// round-trip through Go.
func (s *SQLite) TotalCost(ctx context.Context, filter Filter) (float64, error) {
	query := `SELECT COALESCE(SUM(total_cost_usd), 0) FROM cost_records`
	where, args := filterClauses(filter)
	query += where

	var total float64
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum cost records: %w", err)
	}
	return total, nil
}

// Cleanup implements Store.
func (s *SQLite) Cleanup(ctx context.Context, before time.Time) (int, error) {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM cost_records WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup cost records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup cost records: %w", err)
	}
	return int(n), nil
}

// Close implements Store.
func (s *SQLite) Close() error { return s.conn.Close() }

func filterClauses(filter Filter) (string, []any) {
	where := ""
	var args []any
	add := func(clause string, arg any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, arg)
	}
	if filter.Provider != "" {
		add("provider = ?", filter.Provider)
	}
	if filter.Model != "" {
		add("model = ?", filter.Model)
	}
	if filter.SessionID != "" {
		add("session_id = ?", filter.SessionID)
	}
	if filter.Cached != nil {
		add("cached = ?", *filter.Cached)
	}
	if !filter.Since.IsZero() {
		add("timestamp >= ?", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		add("timestamp <= ?", filter.Until.UTC())
	}
	return where, args
}
