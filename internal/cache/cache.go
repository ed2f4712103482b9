// Package cache persists final answers keyed by the inputs that can
// change them: the model, the prompt and the user's profile snapshot.
// Entries never expire; a recomputed answer overwrites the old one.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MakeKey returns a stable hex SHA-256 over model, prompt and profile.
// Profile maps are encoded with sorted keys, so equal snapshots hash
// equally regardless of insertion order.
func MakeKey(model, prompt string, profile map[string]string) string {
	if profile == nil {
		profile = map[string]string{}
	}
	payload := struct {
		Model   string            `json:"m"`
		Prompt  string            `json:"p"`
		Profile map[string]string `json:"profile"`
	}{model, prompt, profile}

	// Marshalling strings and a string map cannot fail.
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Store is a SQLite key/value table of cached answers.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a cache store on an open database. The schema is
// created automatically. The store owns db from here on.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate cache schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cache (
			k  TEXT PRIMARY KEY,
			v  TEXT NOT NULL,
			ts TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached answer for key. found is false when no entry
// exists; an empty cached answer is still a hit.
func (s *Store) Get(ctx context.Context, key string) (answer string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT v FROM cache WHERE k = ?`, key).Scan(&answer)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cache entry: %w", err)
	}
	return answer, true, nil
}

// Set stores answer under key, replacing any previous entry.
func (s *Store) Set(ctx context.Context, key, answer string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (k, v, ts) VALUES (?, ?, ?)`,
		key, answer, s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// Len returns the number of cached entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

// Clear removes every entry and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache`)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return res.RowsAffected()
}
