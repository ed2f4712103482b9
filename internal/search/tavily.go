package search

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
)

// Tavily queries the Tavily search API, which is built for LLM agents
// and returns pre-extracted page content as the snippet.
type Tavily struct {
	key      string
	endpoint string
	client   *http.Client
}

func NewTavily(apiKey string) *Tavily {
	return &Tavily{key: apiKey, endpoint: "https://api.tavily.com/search", client: newClient()}
}

func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

func (t *Tavily) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if t.key == "" {
		return nil, ErrMissingKey
	}
	payload, err := json.Marshal(tavilyRequest{Query: query, MaxResults: opts.count()})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.key)

	var body struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := decodeJSON(t.client, req, &body); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(body.Results))
	for _, r := range body.Results {
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return out, nil
}
