// Package sentiment classifies text as positive or negative, either
// through an HTTP inference endpoint serving a fine-tuned classifier or
// by asking a chat model.
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/huraaa/Agent-one/internal/httpkit"
)

// Labels.
const (
	Positive = "positive"
	Negative = "negative"
)

// ErrNotConfigured is returned when no classifier backend is set up.
var ErrNotConfigured = errors.New("sentiment classifier not configured")

// Result is a classification with the probability of the chosen label,
// rounded to four decimals.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier labels text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// HTTPClassifier calls an inference endpoint. It sends {"inputs": text}
// and accepts either a Hugging Face style label/score list or a flat
// {"label", "confidence"} object.
type HTTPClassifier struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewHTTP creates an HTTP classifier. token may be empty.
func NewHTTP(url, token string) *HTTPClassifier {
	return &HTTPClassifier{
		url:   url,
		token: token,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(2, time.Second),
		),
	}
}

type labelScore struct {
	Label      string   `json:"label"`
	Score      *float64 `json:"score,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if c.url == "" {
		return Result{}, ErrNotConfigured
	}
	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("sentiment request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("sentiment endpoint returned %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	return parseResponse(raw)
}

// parseResponse accepts [[{label,score}...]], [{label,score}...] or
// {label, confidence|score}. The highest scoring entry wins.
func parseResponse(raw json.RawMessage) (Result, error) {
	var candidates []labelScore

	var nested [][]labelScore
	var flat []labelScore
	var single labelScore
	switch {
	case json.Unmarshal(raw, &nested) == nil && len(nested) > 0:
		candidates = nested[0]
	case json.Unmarshal(raw, &flat) == nil:
		candidates = flat
	case json.Unmarshal(raw, &single) == nil:
		candidates = []labelScore{single}
	default:
		return Result{}, fmt.Errorf("unrecognized sentiment response: %.200s", raw)
	}
	return pick(candidates)
}

// pick returns the highest scoring candidate with a known label.
func pick(candidates []labelScore) (Result, error) {
	best := Result{Confidence: -1}
	for _, c := range candidates {
		score := 0.0
		switch {
		case c.Score != nil:
			score = *c.Score
		case c.Confidence != nil:
			score = *c.Confidence
		}
		label, ok := normalizeLabel(c.Label)
		if !ok {
			continue
		}
		if score > best.Confidence {
			best = Result{Label: label, Confidence: score}
		}
	}
	if best.Label == "" {
		return Result{}, fmt.Errorf("no usable label among %d candidates", len(candidates))
	}
	best.Confidence = round4(best.Confidence)
	return best, nil
}

// normalizeLabel maps common classifier label spellings onto
// positive/negative. LABEL_1 is positive, matching binary fine-tunes.
func normalizeLabel(l string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "positive", "pos", "label_1", "1":
		return Positive, true
	case "negative", "neg", "label_0", "0":
		return Negative, true
	}
	return "", false
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
