package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		sim  float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"scaled", []float32{1, 2}, []float32{2, 4}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"diagonal", []float32{1, 0}, []float32{1, 1}, math.Sqrt2 / 2},
		{"length mismatch", []float32{1}, []float32{1, 2}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(float64(got)-tt.sim) > 1e-6 {
				t.Errorf("similarity = %v, want %v", got, tt.sim)
			}
			if got := CosineDistance(tt.a, tt.b); math.Abs(float64(got)-(1-tt.sim)) > 1e-6 {
				t.Errorf("distance = %v, want %v", got, 1-tt.sim)
			}
		})
	}
}

// fakeOllama answers /api/embed with a one-dimensional vector holding
// each input's length, and records the batch sizes it saw.
func fakeOllama(t *testing.T, batches *[]int, models *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req ollamaEmbed
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		*batches = append(*batches, len(req.Input))
		*models = append(*models, req.Model)
		vecs := make([][]float32, len(req.Input))
		for i, s := range req.Input {
			vecs[i] = []float32{float32(len(s))}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vecs})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllama_Batching(t *testing.T) {
	var batches []int
	var models []string
	srv := fakeOllama(t, &batches, &models)

	texts := make([]string, 7)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}
	vecs, err := New(Config{BaseURL: srv.URL + "/", BatchSize: 3}).GenerateBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if fmt.Sprint(batches) != "[3 3 1]" {
		t.Errorf("batches = %v, want [3 3 1]", batches)
	}
	if models[0] != "nomic-embed-text" {
		t.Errorf("model = %q", models[0])
	}
	for i, v := range vecs {
		if v[0] != float32(i+1) {
			t.Errorf("vector %d = %v, want [%d]", i, v, i+1)
		}
	}
}

func TestOllama_Empty(t *testing.T) {
	var batches []int
	var models []string
	srv := fakeOllama(t, &batches, &models)

	vecs, err := New(Config{BaseURL: srv.URL}).GenerateBatch(context.Background(), nil)
	if err != nil || len(vecs) != 0 || len(batches) != 0 {
		t.Errorf("vecs = %v, err = %v, requests = %d", vecs, err, len(batches))
	}
}

func TestOllama_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"short", 200, `{"embeddings":[[0.1]]}`, "got 1 vectors for 2 inputs"},
		{"model missing", 404, `{"error":"model not found"}`, "status 404"},
		{"garbage", 200, `not json`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL}).GenerateBatch(context.Background(), []string{"a", "b"})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
