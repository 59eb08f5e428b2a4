package embed

import (
	"context"
	"math"
)

// Embedder turns text into a fixed-length vector.
// Implementations are stateless: identical input is recomputed, never cached.
type Embedder interface {
	// Embed generates the embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the configured embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector returns a unit-length copy of v. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
