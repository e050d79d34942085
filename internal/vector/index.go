// Package vector provides nearest-neighbour search over entry embeddings.
package vector

import "context"

// Index stores one vector per id, partitioned by namespace (the owner).
type Index interface {
	// Upsert adds or replaces the vector for id. An empty vector removes it.
	Upsert(ctx context.Context, namespace, id string, vec []float32) error
	// Search returns up to k ids in namespace closest to query by cosine similarity.
	// Vectors of a different dimension are skipped.
	Search(ctx context.Context, namespace string, query []float32, k int) ([]*Result, error)
	Remove(ctx context.Context, ids ...string) error
	Size() int
	Close() error
}

// Result is a single vector search hit.
type Result struct {
	ID    string
	Score float64 // cosine similarity in [-1, 1]
}
