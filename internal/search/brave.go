package search

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Brave queries the Brave Search web API.
type Brave struct {
	key      string
	endpoint string
	client   *http.Client
}

func NewBrave(apiKey string) *Brave {
	return &Brave{
		key:      apiKey,
		endpoint: "https://api.search.brave.com/res/v1/web/search",
		client:   newClient(),
	}
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if b.key == "" {
		return nil, ErrMissingKey
	}
	q := url.Values{"q": {query}, "count": {strconv.Itoa(opts.count())}}
	if opts.Language != "" {
		q.Set("search_lang", opts.Language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", b.key)

	var body struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := decodeJSON(b.client, req, &body); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(body.Web.Results))
	for _, r := range body.Web.Results {
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return out, nil
}
