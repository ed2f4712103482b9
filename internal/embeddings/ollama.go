package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/huraaa/Agent-one/internal/httpkit"
)

// Config selects the Ollama server and model.
type Config struct {
	BaseURL string // default http://localhost:11434
	Model   string // default nomic-embed-text
	// BatchSize caps the inputs sent per /api/embed call. Zero means 32.
	BatchSize int
}

// Ollama embeds through Ollama's /api/embed endpoint.
type Ollama struct {
	url   string
	model string
	batch int
	http  *http.Client
}

// New returns an Ollama embedder with defaults filled in.
func New(cfg Config) *Ollama {
	o := &Ollama{
		url:   strings.TrimRight(cfg.BaseURL, "/"),
		model: cfg.Model,
		batch: cfg.BatchSize,
		http: httpkit.NewClient(
			httpkit.WithTimeout(60*time.Second),
			httpkit.WithRetry(2, 250*time.Millisecond),
		),
	}
	if o.url == "" {
		o.url = "http://localhost:11434"
	}
	if o.model == "" {
		o.model = "nomic-embed-text"
	}
	if o.batch <= 0 {
		o.batch = 32
	}
	return o
}

type ollamaEmbed struct {
	Model      string      `json:"model"`
	Input      []string    `json:"input"`
	Embeddings [][]float32 `json:"embeddings,omitempty"`
}

// GenerateBatch embeds texts in chunks of BatchSize.
func (o *Ollama) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.batch {
		part := texts[start:min(start+o.batch, len(texts))]
		vecs, err := o.embed(ctx, part)
		if err != nil {
			return nil, fmt.Errorf("ollama embed [%d:%d]: %w", start, start+len(part), err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (o *Ollama) embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(ollamaEmbed{Model: o.model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var body ollamaEmbed
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(body.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d vectors for %d inputs", len(body.Embeddings), len(texts))
	}
	return body.Embeddings, nil
}
