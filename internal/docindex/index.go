// Package docindex stores embedded document chunks in SQLite and answers
// top-k similarity queries by cosine distance.
package docindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/huraaa/Agent-one/internal/embeddings"
)

// Limits applied by Add before anything reaches the embedder.
const (
	ClipChars     = 4000
	BatchMaxChars = 180000
)

// Doc is one chunk to index.
type Doc struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Hit is one query result. Score is the cosine distance (lower is
// closer); nil when the stored vector cannot be compared with the query.
type Hit struct {
	ID     string   `json:"-"`
	Text   string   `json:"text"`
	Source string   `json:"source"`
	Score  *float64 `json:"score"`
}

// Index is a SQLite-backed document index.
type Index struct {
	db       *sql.DB
	embedder embeddings.Embedder
	logger   *slog.Logger
	useVec   bool
}

// New creates an index on db, which it owns. Distances are computed in
// SQL when the sqlite-vec extension is loaded, in Go otherwise.
func New(db *sql.DB, embedder embeddings.Embedder, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Index{db: db, embedder: embedder, logger: logger}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	var version string
	if err := db.QueryRow(`SELECT vec_version()`).Scan(&version); err == nil {
		idx.useVec = true
		logger.Debug("sqlite-vec available", "version", version)
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS docs (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			embedding BLOB NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_docs_source ON docs(source);
	`)
	return err
}

// Close closes the database.
func (idx *Index) Close() error {
	return idx.db.Close()
}

var (
	specialTokens = regexp.MustCompile(`<\|.*?\|>`)
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// Clean strips model special tokens (<|...|>) and control characters,
// then collapses runs of whitespace.
func Clean(s string) string {
	s = specialTokens.ReplaceAllString(s, " ")
	s = controlChars.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// clip truncates s to n runes.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Batches clips and cleans docs and groups them so no batch exceeds
// BatchMaxChars of text. A single document is never split. Documents
// that are empty after cleaning are dropped.
func Batches(docs []Doc) [][]Doc {
	var (
		out    [][]Doc
		cur    []Doc
		budget int
	)
	for _, d := range docs {
		text := Clean(clip(d.Text, ClipChars))
		if text == "" {
			continue
		}
		n := len([]rune(text))
		if budget > 0 && budget+n > BatchMaxChars {
			out = append(out, cur)
			cur, budget = nil, 0
		}
		cur = append(cur, Doc{ID: d.ID, Text: text, Source: d.Source})
		budget += n
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// Add embeds and stores docs, replacing any with the same id. It
// returns the number of documents written.
func (idx *Index) Add(ctx context.Context, docs []Doc) (int, error) {
	written := 0
	for i, batch := range Batches(docs) {
		texts := make([]string, len(batch))
		for j, d := range batch {
			texts[j] = d.Text
		}
		vecs, err := idx.embedder.GenerateBatch(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("embed batch %d: %w", i, err)
		}
		if len(vecs) != len(batch) {
			return written, fmt.Errorf("embed batch %d: got %d vectors for %d docs", i, len(vecs), len(batch))
		}
		if err := idx.insert(ctx, batch, vecs); err != nil {
			return written, fmt.Errorf("store batch %d: %w", i, err)
		}
		written += len(batch)
		idx.logger.Debug("indexed batch", "batch", i, "docs", len(batch))
	}
	return written, nil
}

func (idx *Index) insert(ctx context.Context, batch []Doc, vecs [][]float32) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, d := range batch {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO docs (id, text, source, embedding, created_at) VALUES (?, ?, ?, ?, ?)`,
			d.ID, d.Text, d.Source, encodeEmbedding(vecs[i]), now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Query returns up to k documents closest to text, nearest first.
func (idx *Index) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	q := Clean(text)
	if q == "" {
		return nil, nil
	}
	vecs, err := idx.embedder.GenerateBatch(ctx, []string{q})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	if idx.useVec {
		return idx.queryVec(ctx, vecs[0], k)
	}
	return idx.queryScan(ctx, vecs[0], k)
}

// queryVec lets sqlite-vec compute distances.
func (idx *Index) queryVec(ctx context.Context, query []float32, k int) ([]Hit, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, text, source, vec_distance_cosine(embedding, ?) AS distance
		FROM docs
		ORDER BY distance IS NULL, distance
		LIMIT ?`, encodeEmbedding(query), k)
	if err != nil {
		return nil, fmt.Errorf("query docs: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h    Hit
			dist sql.NullFloat64
		)
		if err := rows.Scan(&h.ID, &h.Text, &h.Source, &dist); err != nil {
			return nil, fmt.Errorf("scan doc: %w", err)
		}
		if dist.Valid {
			d := dist.Float64
			h.Score = &d
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// queryScan reads every vector and ranks in Go. Vectors whose
// dimension differs from the query's (left over from another
// embedding model) cannot be compared and are skipped.
func (idx *Index) queryScan(ctx context.Context, query []float32, k int) ([]Hit, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT id, text, source, embedding FROM docs`)
	if err != nil {
		return nil, fmt.Errorf("query docs: %w", err)
	}
	defer rows.Close()

	var (
		hits    []Hit
		skipped int
	)
	for rows.Next() {
		var (
			h    Hit
			blob []byte
		)
		if err := rows.Scan(&h.ID, &h.Text, &h.Source, &blob); err != nil {
			return nil, fmt.Errorf("scan doc: %w", err)
		}
		vec := decodeEmbedding(blob)
		if len(vec) != len(query) {
			skipped++
			continue
		}
		d := float64(embeddings.CosineDistance(query, vec))
		h.Score = &d
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		idx.logger.Warn("skipped documents with a different embedding dimension; re-ingest after changing the embedding model",
			"skipped", skipped, "query_dim", len(query))
	}

	sort.SliceStable(hits, func(i, j int) bool { return *hits[i].Score < *hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (idx *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count docs: %w", err)
	}
	return n, nil
}

// Reset deletes every document.
func (idx *Index) Reset(ctx context.Context) error {
	if _, err := idx.db.ExecContext(ctx, `DELETE FROM docs`); err != nil {
		return fmt.Errorf("reset docs: %w", err)
	}
	return nil
}

// Confident reports whether hits are good enough to answer from: false
// when there are none, true when the top hit carries no score, else
// whether the top distance is within maxDistance.
func Confident(hits []Hit, maxDistance float64) bool {
	if len(hits) == 0 {
		return false
	}
	top := hits[0].Score
	if top == nil {
		return true
	}
	return *top <= maxDistance
}

func encodeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	result := make([]float32, len(data)/4)
	for i := range result {
		result[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return result
}
