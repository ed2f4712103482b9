// Package usage records the token spend of every model call and
// answers cost questions about it: per run, per model, per role.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/huraaa/Agent-one/internal/config"
)

// Record is the spend of one model call.
type Record struct {
	ID           string
	Timestamp    time.Time
	RequestID    string
	UserID       string
	Model        string
	Provider     string // "openai", "ollama"
	Round        int    // 1-based loop round; 0 outside the loop
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Role         string // "interactive", "eval", "judge", "sentiment"
}

// Summary totals a set of records.
type Summary struct {
	TotalRecords      int     `json:"calls"`
	TotalInputTokens  int64   `json:"input_tokens"`
	TotalOutputTokens int64   `json:"output_tokens"`
	TotalCostUSD      float64 `json:"cost_usd"`
}

// Filter narrows a query. Zero fields match everything; Since is
// inclusive and Until exclusive.
type Filter struct {
	Since     time.Time
	Until     time.Time
	RequestID string
	Role      string
}

func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, stamp(f.Since))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, stamp(f.Until))
	}
	if f.RequestID != "" {
		conds = append(conds, "request_id = ?")
		args = append(args, f.RequestID)
	}
	if f.Role != "" {
		conds = append(conds, "role = ?")
		args = append(args, f.Role)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Dimension is a column Breakdown can group on.
type Dimension string

const (
	ByModel Dimension = "model"
	ByRole  Dimension = "role"
	ByUser  Dimension = "user_id"
)

// Store is an append-only usage ledger in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates the schema on db if needed. The store owns db.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id            TEXT PRIMARY KEY,
	timestamp     TEXT NOT NULL,
	request_id    TEXT NOT NULL,
	user_id       TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL,
	provider      TEXT NOT NULL,
	round         INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd      REAL NOT NULL,
	role          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
CREATE INDEX IF NOT EXISTS idx_usage_request ON usage_records(request_id);
`

func (s *Store) Close() error { return s.db.Close() }

// stampLayout is fixed width so string comparison in SQL orders by time.
const stampLayout = "2006-01-02T15:04:05.000000000Z"

func stamp(t time.Time) string { return t.UTC().Format(stampLayout) }

// Record appends rec, filling in a UUIDv7 id and the current time when
// they are unset.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate usage id: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO usage_records
		(id, timestamp, request_id, user_id, model, provider, round, input_tokens, output_tokens, cost_usd, role)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, stamp(rec.Timestamp), rec.RequestID, rec.UserID, rec.Model, rec.Provider,
		rec.Round, rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.Role)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

const totals = `COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)`

// Totals sums every record matching f.
func (s *Store) Totals(ctx context.Context, f Filter) (Summary, error) {
	where, args := f.where()
	var sum Summary
	err := s.db.QueryRowContext(ctx, "SELECT "+totals+" FROM usage_records"+where, args...).
		Scan(&sum.TotalRecords, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalCostUSD)
	if err != nil {
		return Summary{}, fmt.Errorf("query usage totals: %w", err)
	}
	return sum, nil
}

// Breakdown groups the records matching f by dim.
func (s *Store) Breakdown(ctx context.Context, f Filter, dim Dimension) (map[string]Summary, error) {
	switch dim {
	case ByModel, ByRole, ByUser:
	default:
		return nil, fmt.Errorf("unknown usage dimension %q", dim)
	}
	where, args := f.where()
	query := fmt.Sprintf("SELECT %s, %s FROM usage_records%s GROUP BY %s", dim, totals, where, dim)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage by %s: %w", dim, err)
	}
	defer rows.Close()

	out := make(map[string]Summary)
	for rows.Next() {
		var key string
		var sum Summary
		if err := rows.Scan(&key, &sum.TotalRecords, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("scan usage by %s: %w", dim, err)
		}
		out[key] = sum
	}
	return out, rows.Err()
}

// ComputeCost prices a call from the per-million-token table. Models
// missing from the table, such as local Ollama models, cost nothing.
func ComputeCost(model string, inputTokens, outputTokens int, pricing map[string]config.PricingEntry) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)*p.InputPerMillion + float64(outputTokens)*p.OutputPerMillion) / 1e6
}
