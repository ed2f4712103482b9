// Package embeddings turns text into vectors for document retrieval
// and answer similarity, using Ollama or the OpenAI embeddings API.
package embeddings

import (
	"context"
	"math"
)

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// CosineSimilarity is the cosine of the angle between a and b. Vectors
// of different length or zero magnitude score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, aa, bb float64
	for i, x := range a {
		y := float64(b[i])
		dot += float64(x) * y
		aa += float64(x) * float64(x)
		bb += y * y
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	return float32(dot / math.Sqrt(aa*bb))
}

// CosineDistance is 1 - CosineSimilarity, in [0, 2].
func CosineDistance(a, b []float32) float32 {
	return 1 - CosineSimilarity(a, b)
}
