package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/somnia/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests: the same text always gets the
// same unit vector.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a MockEmbedder with the given dimensions (384 when not positive).
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a vector derived from the text hash.
func (e *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := float64(HashString(text))
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(h*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockEmbedder) Close() error {
	return nil
}
