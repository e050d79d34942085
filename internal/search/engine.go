// Package search resolves keyword and embedding-similarity hits to the owner's entries.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/somnia/internal/config"
	"github.com/hyperjump/somnia/internal/keyword"
	"github.com/hyperjump/somnia/internal/models"
	"github.com/hyperjump/somnia/internal/storage"
	"github.com/hyperjump/somnia/internal/vector"
)

const snippetLength = 200

// defaultTitleBoost ranks title matches above body matches.
const defaultTitleBoost = 2.0

// Hit is one matched entry.
type Hit struct {
	Entry   *models.Entry `json:"entry"`
	Score   float64       `json:"score"`
	Snippet string        `json:"snippet,omitempty"`
}

// Response is the result of a keyword search.
type Response struct {
	Query     string `json:"query"`
	Hits      []*Hit `json:"hits"`
	Total     int    `json:"total"`
	QueryTime int64  `json:"query_time_ms"`
}

// Engine runs keyword and similarity searches scoped to one owner.
type Engine struct {
	storage      storage.Storage
	keywordIndex keyword.Index
	vectorIndex  vector.Index
	config       *config.SearchConfig
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(store storage.Storage, keywordIndex keyword.Index, vectorIndex vector.Index, cfg *config.SearchConfig) *Engine {
	return &Engine{
		storage:      store,
		keywordIndex: keywordIndex,
		vectorIndex:  vectorIndex,
		config:       cfg,
	}
}

// Search runs a keyword search over the owner's entries. fuzzy enables typo tolerance.
func (e *Engine) Search(ctx context.Context, ownerID, query string, limit int, fuzzy bool) (*Response, error) {
	start := time.Now()
	query, limit, err := ProcessQuery(query, limit, e.config)
	if err != nil {
		return nil, err
	}
	results, err := e.keywordIndex.Search(ctx, ownerID, query, limit, &keyword.SearchOptions{
		TitleBoost:   defaultTitleBoost,
		FuzzyEnabled: fuzzy,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	hits := make([]*Hit, 0, len(results))
	for _, r := range results {
		entry, err := e.resolve(ctx, ownerID, r.ID)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}
		hits = append(hits, &Hit{Entry: entry, Score: r.Score, Snippet: Highlight(entry.Content, query, snippetLength)})
	}
	return &Response{
		Query:     query,
		Hits:      hits,
		Total:     len(hits),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// Similar returns the owner's entries whose embeddings are closest to the given entry's,
// excluding the entry itself. An entry without an embedding has no similar entries.
func (e *Engine) Similar(ctx context.Context, ownerID, entryID string, limit int) ([]*Hit, error) {
	entry, err := e.storage.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	if len(entry.Embedding) == 0 {
		return []*Hit{}, nil
	}
	limit = resolveLimit(limit, e.config.SimilarLimit, e.config.MaxLimit)

	results, err := e.vectorIndex.Search(ctx, ownerID, entry.Embedding, limit+1)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	hits := make([]*Hit, 0, limit)
	for _, r := range results {
		if r.ID == entryID || len(hits) == limit {
			continue
		}
		other, err := e.resolve(ctx, ownerID, r.ID)
		if err != nil {
			return nil, err
		}
		if other == nil {
			continue
		}
		hits = append(hits, &Hit{Entry: other, Score: r.Score})
	}
	return hits, nil
}

// resolve loads an index hit. Stale hits (deleted or foreign entries) resolve to nil.
func (e *Engine) resolve(ctx context.Context, ownerID, id string) (*models.Entry, error) {
	entry, err := e.storage.GetEntry(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load entry %s: %w", id, err)
	}
	if entry.OwnerID != ownerID {
		return nil, nil
	}
	return entry, nil
}

// KeywordDocCount returns the number of entries in the keyword index.
func (e *Engine) KeywordDocCount() (uint64, error) {
	return e.keywordIndex.DocCount()
}

// VectorIndexSize returns the number of vectors in the similarity index.
func (e *Engine) VectorIndexSize() int {
	return e.vectorIndex.Size()
}
