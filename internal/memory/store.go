// Package memory stores what the agent knows about each user: a
// profile of key/value preferences (overwrite semantics) and an
// append-only log of free-text facts.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmpty is returned when a profile key or fact is blank.
var ErrEmpty = errors.New("value is empty")

// Fact is one remembered statement about a user.
type Fact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"fact"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages profile and fact persistence.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a memory store on an open database. The schema is
// created automatically. The store owns db from here on.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate memory schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			user_id    TEXT NOT NULL,
			k          TEXT NOT NULL,
			v          TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, k)
		);

		CREATE TABLE IF NOT EXISTS facts (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			user_id    TEXT NOT NULL,
			fact       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id, seq DESC);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Profile returns the user's profile. A user with no entries gets an
// empty, non-nil map.
func (s *Store) Profile(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT k, v FROM profiles WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	defer rows.Close()

	profile := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profile[k] = v
	}
	return profile, rows.Err()
}

// SetProfile stores value under key for the user, replacing any
// previous value.
func (s *Store) SetProfile(ctx context.Context, userID, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("profile key: %w", ErrEmpty)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, k, v, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at
	`, userID, key, value, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set profile: %w", err)
	}
	return nil
}

// DeleteProfile removes key from the user's profile. Removing a
// missing key is not an error.
func (s *Store) DeleteProfile(ctx context.Context, userID, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ? AND k = ?`, userID, key); err != nil {
		return fmt.Errorf("delete profile key: %w", err)
	}
	return nil
}

// AddFact appends a fact to the user's log.
func (s *Store) AddFact(ctx context.Context, userID, text string) (*Fact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("fact: %w", ErrEmpty)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate fact ID: %w", err)
	}
	now := s.now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO facts (id, user_id, fact, created_at) VALUES (?, ?, ?, ?)`,
		id.String(), userID, text, now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert fact: %w", err)
	}
	return &Fact{ID: id.String(), UserID: userID, Text: text, CreatedAt: now}, nil
}

// RecentFacts returns up to n of the user's facts, newest first.
func (s *Store) RecentFacts(ctx context.Context, userID string, n int) ([]Fact, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, fact, created_at FROM facts
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		var created string
		if err := rows.Scan(&f.ID, &f.UserID, &f.Text, &created); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.CreatedAt, _ = time.Parse(time.RFC3339, created)
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// FactTexts returns the text of each fact, preserving order.
func FactTexts(facts []Fact) []string {
	out := make([]string, len(facts))
	for i, f := range facts {
		out[i] = f.Text
	}
	return out
}
