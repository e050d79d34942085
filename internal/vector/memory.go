package vector

import (
	"context"
	"sort"
	"sync"
)

type item struct {
	namespace string
	vec       []float32 // unit length
}

// MemoryIndex is a brute-force in-memory index. It is rebuilt from storage on startup.
type MemoryIndex struct {
	items map[string]item
	mu    sync.RWMutex
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{items: make(map[string]item)}
}

// Upsert stores a normalized copy of vec. Zero vectors are treated as empty.
func (m *MemoryIndex) Upsert(ctx context.Context, namespace, id string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	norm := L2Norm(vec)
	if len(vec) == 0 || norm == 0 {
		delete(m.items, id)
		return nil
	}
	cp := make([]float32, len(vec))
	for i, v := range vec {
		cp[i] = float32(float64(v) / norm)
	}
	m.items[id] = item{namespace: namespace, vec: cp}
	return nil
}

// Search returns the top-k ids by cosine similarity, highest first; ties break by id.
func (m *MemoryIndex) Search(ctx context.Context, namespace string, query []float32, k int) ([]*Result, error) {
	if k <= 0 || L2Norm(query) == 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*Result, 0, len(m.items))
	for id, it := range m.items {
		if it.namespace != namespace || len(it.vec) != len(query) {
			continue
		}
		results = append(results, &Result{ID: id, Score: Cosine(query, it.vec)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Remove deletes vectors by id. Unknown ids are ignored.
func (m *MemoryIndex) Remove(ctx context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.items, id)
	}
	return nil
}

// Size returns the number of stored vectors.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Close releases the index contents.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]item)
	return nil
}
