// Package ingest turns PDF, markdown and plain-text files into
// overlapping chunks and adds them to the document index.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/huraaa/Agent-one/internal/docindex"
)

// Default chunk geometry for ingestion.
const (
	DefaultMaxChars = 1200
	DefaultOverlap  = 200
)

// Adder stores documents. *docindex.Index satisfies it.
type Adder interface {
	Add(ctx context.Context, docs []docindex.Doc) (int, error)
}

// Ingester chunks files and writes them to an index.
type Ingester struct {
	index    Adder
	maxChars int
	overlap  int
	logger   *slog.Logger
	newID    func() string
}

// New creates an ingester. Non-positive maxChars selects the defaults.
func New(index Adder, maxChars, overlap int, logger *slog.Logger) *Ingester {
	if maxChars <= 0 {
		maxChars, overlap = DefaultMaxChars, DefaultOverlap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		index:    index,
		maxChars: maxChars,
		overlap:  overlap,
		logger:   logger,
		newID:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:6] },
	}
}

// Stats reports what an ingestion run did.
type Stats struct {
	Files   int `json:"files"`
	Chunks  int `json:"chunks"`
	Written int `json:"written"`
}

// Files ingests each path. A file that cannot be read aborts the run
// before anything is written.
func (in *Ingester) Files(ctx context.Context, paths []string) (Stats, error) {
	var (
		stats Stats
		docs  []docindex.Doc
	)
	for _, p := range paths {
		fileDocs, err := in.Docs(p)
		if err != nil {
			return stats, fmt.Errorf("ingest %s: %w", p, err)
		}
		in.logger.Info("chunked file", "path", p, "chunks", len(fileDocs))
		stats.Files++
		stats.Chunks += len(fileDocs)
		docs = append(docs, fileDocs...)
	}
	if len(docs) == 0 {
		return stats, nil
	}

	n, err := in.index.Add(ctx, docs)
	stats.Written = n
	if err != nil {
		return stats, fmt.Errorf("add to index: %w", err)
	}
	return stats, nil
}

// Docs loads path and returns its chunks. Ids are
// "<basename>-<i>-<6 hex>"; the source is the path as given.
func (in *Ingester) Docs(path string) ([]docindex.Doc, error) {
	var texts []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		txt, err := LoadPDF(path)
		if err != nil {
			return nil, err
		}
		texts = []string{txt}
	case ".md", ".markdown":
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		for _, s := range MarkdownSections(src) {
			texts = append(texts, s.Content)
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		texts = []string{string(data)}
	}

	base := filepath.Base(path)
	var docs []docindex.Doc
	for _, t := range texts {
		for _, c := range ChunkText(t, in.maxChars, in.overlap) {
			docs = append(docs, docindex.Doc{
				ID:     fmt.Sprintf("%s-%d-%s", base, len(docs), in.newID()),
				Text:   c,
				Source: path,
			})
		}
	}
	return docs, nil
}
