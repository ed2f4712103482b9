package embeddings

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

func TestOpenAI_GenerateBatchOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %q, want /v1/embeddings", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0, 1]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`)
	}))
	defer srv.Close()

	c := openai.NewClient(option.WithAPIKey("sk-test"), option.WithBaseURL(srv.URL+"/v1/"), option.WithMaxRetries(0))
	vecs, err := NewOpenAI(&c, "").GenerateBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("GenerateBatch() error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors not placed by index: %v", vecs)
	}
}

func TestOpenAI_GenerateBatchEmpty(t *testing.T) {
	vecs, err := NewOpenAI(nil, "").GenerateBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("GenerateBatch(nil) = %v, %v; want nil, nil", vecs, err)
	}
}
