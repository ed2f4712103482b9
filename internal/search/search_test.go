package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type mockProvider struct {
	name    string
	results []Result
	err     error
	calls   int
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Search(_ context.Context, _ string, _ Options) ([]Result, error) {
	m.calls++
	return m.results, m.err
}

func TestManager_PrimaryFirst(t *testing.T) {
	first := &mockProvider{name: "first", results: []Result{{Title: "First"}}}
	second := &mockProvider{name: "second", results: []Result{{Title: "Second"}}}
	mgr := NewManager("second")
	mgr.Register(first)
	mgr.Register(second)

	if got := strings.Join(mgr.Providers(), ","); got != "second,first" {
		t.Errorf("Providers() = %q, want second,first", got)
	}
	results, err := mgr.Search(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Title != "Second" || first.calls != 0 {
		t.Errorf("results = %+v, first.calls = %d", results, first.calls)
	}
}

func TestManager_FallsThrough(t *testing.T) {
	broken := &mockProvider{name: "tavily", err: errors.New("status 500")}
	backup := &mockProvider{name: "duckduckgo", results: []Result{{Title: "Backup"}}}
	mgr := NewManager("tavily")
	mgr.Register(broken)
	mgr.Register(backup)

	results, err := mgr.Search(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Backup" {
		t.Errorf("results = %+v", results)
	}
}

func TestManager_AllFail(t *testing.T) {
	mgr := NewManager("")
	mgr.Register(&mockProvider{name: "a", err: errors.New("down")})
	mgr.Register(&mockProvider{name: "b", err: ErrMissingKey})

	_, err := mgr.Search(context.Background(), "q", Options{})
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("err = %v, want it to wrap ErrMissingKey", err)
	}
	if !strings.Contains(err.Error(), "a: down") || !strings.Contains(err.Error(), "b: api key not configured") {
		t.Errorf("err = %q", err)
	}
}

func TestManager_CancelStopsFallThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	second := &mockProvider{name: "b"}
	mgr := NewManager("a")
	mgr.Register(&mockProvider{name: "a", err: context.Canceled})
	mgr.Register(second)

	if _, err := mgr.Search(ctx, "q", Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if second.calls != 0 {
		t.Errorf("second provider called %d times", second.calls)
	}
}

func TestManager_TruncatesToCount(t *testing.T) {
	mgr := NewManager("m")
	mgr.Register(&mockProvider{name: "m", results: make([]Result, 12)})

	tests := []struct {
		count int
		want  int
	}{
		{0, DefaultCount},
		{3, 3},
		{20, 12},
	}
	for _, tt := range tests {
		results, err := mgr.Search(context.Background(), "q", Options{Count: tt.count})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != tt.want {
			t.Errorf("Count %d: got %d results, want %d", tt.count, len(results), tt.want)
		}
	}
}

func TestManager_Register(t *testing.T) {
	mgr := NewManager("x")
	if mgr.Configured() {
		t.Error("empty manager reports configured")
	}
	if _, err := mgr.Search(context.Background(), "q", Options{}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}
	mgr.Register(&mockProvider{name: "x", results: []Result{{Title: "old"}}})
	mgr.Register(&mockProvider{name: "x", results: []Result{{Title: "new"}}})
	if got := mgr.Providers(); len(got) != 1 {
		t.Fatalf("Providers() = %v, want one entry", got)
	}
	results, _ := mgr.Search(context.Background(), "q", Options{})
	if results[0].Title != "new" {
		t.Errorf("re-registered provider not used: %+v", results)
	}
}

func TestTavilySearch(t *testing.T) {
	var got tavilyRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tv-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"results":[
			{"title":"Go 1.24","url":"https://go.dev/doc/go1.24","content":"Release notes","score":0.9},
			{"title":"Other","url":"https://example.com","content":"x","score":0.1}
		]}`)
	}))
	defer ts.Close()

	p := NewTavily("tv-key")
	p.endpoint = ts.URL
	results, err := p.Search(context.Background(), "go 1.24", Options{Count: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got.Query != "go 1.24" || got.MaxResults != 1 || got.IncludeAnswer {
		t.Errorf("request = %+v", got)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	want := Result{Title: "Go 1.24", URL: "https://go.dev/doc/go1.24", Snippet: "Release notes"}
	if results[0] != want {
		t.Errorf("result = %+v, want %+v", results[0], want)
	}
}

func TestKeyedProvidersWithoutKey(t *testing.T) {
	for _, p := range []Provider{NewTavily(""), NewBrave("")} {
		_, err := p.Search(context.Background(), "q", Options{})
		if !errors.Is(err, ErrMissingKey) {
			t.Errorf("%s: err = %v, want ErrMissingKey", p.Name(), err)
		}
	}
}

func TestBraveSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "bk" {
			t.Errorf("token header = %q", r.Header.Get("X-Subscription-Token"))
		}
		if r.URL.Query().Get("count") != "5" {
			t.Errorf("count = %q, want 5", r.URL.Query().Get("count"))
		}
		io.WriteString(w, `{"web":{"results":[{"title":"T","url":"https://t.example","description":"D"}]}}`)
	}))
	defer ts.Close()

	b := NewBrave("bk")
	b.endpoint = ts.URL
	results, err := b.Search(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Snippet != "D" {
		t.Errorf("results = %+v", results)
	}
}

func TestSearXNGSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" {
			t.Errorf("unexpected request %s", r.URL)
		}
		io.WriteString(w, `{"results":[{"title":"A","url":"https://a","content":"a"},{"title":"B","url":"https://b","content":"b"}]}`)
	}))
	defer ts.Close()

	results, err := NewSearXNG(ts.URL+"/").Search(context.Background(), "q", Options{Count: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Title != "A" {
		t.Errorf("results = %+v", results)
	}
}

const ddgPage = `<html><body>
<div class="result results_links web-result">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">The <b>Go</b> Docs</a>
  </h2>
  <a class="result__snippet" href="#">Documentation for the   Go language.</a>
</div>
<div class="result">
  <h2 class="result__title"><a class="result__a" href="https://pkg.go.dev/">Packages</a></h2>
</div>
</body></html>`

func TestParseDuckDuckGo(t *testing.T) {
	results, err := parseDuckDuckGo(strings.NewReader(ddgPage))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	want := Result{Title: "The Go Docs", URL: "https://go.dev/doc/", Snippet: "Documentation for the Go language."}
	if results[0] != want {
		t.Errorf("result 0 = %+v, want %+v", results[0], want)
	}
	if results[1].URL != "https://pkg.go.dev/" || results[1].Snippet != "" {
		t.Errorf("result 1 = %+v", results[1])
	}
}

func TestDuckDuckGoSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "golang" {
			t.Errorf("q = %q", r.URL.Query().Get("q"))
		}
		io.WriteString(w, ddgPage)
	}))
	defer ts.Close()

	d := NewDuckDuckGo()
	d.endpoint = ts.URL
	results, err := d.Search(context.Background(), "golang", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestToolHandler(t *testing.T) {
	var gotOpts Options
	mgr := NewManager("mock")
	mgr.Register(&recordingProvider{opts: &gotOpts, results: []Result{{Title: "T", URL: "https://u"}}})

	out, err := ToolHandler(mgr)(context.Background(), map[string]any{"query": "q", "k": float64(3)})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if gotOpts.Count != 3 {
		t.Errorf("Count = %d, want 3", gotOpts.Count)
	}
	items, _ := out["results"].([]map[string]any)
	if len(items) != 1 || items[0]["title"] != "T" || items[0]["snippet"] != "" {
		t.Errorf("results = %v", out["results"])
	}

	if _, err := ToolHandler(mgr)(context.Background(), map[string]any{"query": "q", "k": float64(50), "language": "de"}); err != nil {
		t.Fatal(err)
	}
	if gotOpts.Count != 10 || gotOpts.Language != "de" {
		t.Errorf("opts = %+v, want Count 10 Language de", gotOpts)
	}
}

func TestToolHandlerErrors(t *testing.T) {
	h := ToolHandler(NewManager("none"))
	if _, err := h(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error for missing query")
	}
	if _, err := h(context.Background(), map[string]any{"query": "q"}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}
}

type recordingProvider struct {
	opts    *Options
	results []Result
}

func (r *recordingProvider) Name() string { return "mock" }
func (r *recordingProvider) Search(_ context.Context, _ string, opts Options) ([]Result, error) {
	*r.opts = opts
	return r.results, nil
}
