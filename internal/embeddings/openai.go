package embeddings

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
)

// OpenAI generates embeddings with the OpenAI embeddings endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI wraps an already configured SDK client.
func NewOpenAI(client *openai.Client, model string) *OpenAI {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAI{client: client, model: model}
}

// GenerateBatch embeds texts in one request. The API may return data
// out of order, so results are placed by their index.
func (o *OpenAI) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}
