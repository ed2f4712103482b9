package search

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// SearXNG queries a self-hosted SearXNG instance through its JSON
// output format, which must be enabled in the instance settings.
type SearXNG struct {
	base   string
	client *http.Client
}

// NewSearXNG takes the instance root, e.g. http://localhost:8888.
func NewSearXNG(baseURL string) *SearXNG {
	return &SearXNG{base: strings.TrimRight(baseURL, "/"), client: newClient()}
}

func (s *SearXNG) Name() string { return "searxng" }

func (s *SearXNG) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	q := url.Values{"q": {query}, "format": {"json"}}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var body struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := decodeJSON(s.client, req, &body); err != nil {
		return nil, err
	}
	out := make([]Result, 0, min(len(body.Results), opts.count()))
	for _, r := range body.Results[:min(len(body.Results), opts.count())] {
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return out, nil
}
