// Package usage is the append-only request log kept by the remote proxy.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Outcome is the result of one provider call.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Record is one logged provider call. Records are never updated.
type Record struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Provider  string    `json:"provider"`
	Outcome   Outcome   `json:"outcome"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// ModeCount aggregates the log for one mode.
type ModeCount struct {
	Mode     string `json:"mode"`
	Total    int    `json:"total"`
	Failures int    `json:"failures"`
}

// Recorder appends records.
type Recorder interface {
	Record(ctx context.Context, r Record) error
}

// Nop discards records.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Record) error { return nil }

// Store persists records in the usage_log table.
type Store struct {
	db *sql.DB
}

// NewStore wraps a migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record appends r.
func (s *Store) Record(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_log (id, mode, provider, outcome, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Mode, r.Provider, string(r.Outcome), r.LatencyMS, r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("usage: insert %s: %w", r.ID, err)
	}
	return nil
}

// CountsByMode returns per-mode totals, most used first.
func (s *Store) CountsByMode(ctx context.Context) ([]ModeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mode,
		       COUNT(*),
		       SUM(CASE WHEN outcome = 'error' THEN 1 ELSE 0 END)
		FROM usage_log
		GROUP BY mode
		ORDER BY COUNT(*) DESC, mode ASC`)
	if err != nil {
		return nil, fmt.Errorf("usage: count by mode: %w", err)
	}
	defer rows.Close()

	out := []ModeCount{}
	for rows.Next() {
		var c ModeCount
		if err := rows.Scan(&c.Mode, &c.Total, &c.Failures); err != nil {
			return nil, fmt.Errorf("usage: scan count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, provider, outcome, latency_ms, created_at
		FROM usage_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("usage: recent: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r       Record
			outcome string
			created string
		)
		if err := rows.Scan(&r.ID, &r.Mode, &r.Provider, &outcome, &r.LatencyMS, &created); err != nil {
			return nil, fmt.Errorf("usage: scan record: %w", err)
		}
		r.Outcome = Outcome(outcome)
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("usage: parse created_at %q: %w", created, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
