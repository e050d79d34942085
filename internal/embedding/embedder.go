// Package embedding turns entry text into unit-length vectors for the structural analyzer.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// Options configures the ONNX embedder.
type Options struct {
	ModelPath      string
	RuntimeLibrary string
	Dimensions     int
	MaxTokens      int
}
