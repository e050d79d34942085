// Package indexer keeps the keyword and vector indices in step with stored entries.
package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/somnia/internal/keyword"
	"github.com/hyperjump/somnia/internal/models"
	"github.com/hyperjump/somnia/internal/storage"
	"github.com/hyperjump/somnia/internal/vector"
	"go.uber.org/zap"
)

// Indexer writes entries into the keyword and vector indices.
type Indexer struct {
	storage      storage.Storage
	keywordIndex keyword.Index
	vectorIndex  vector.Index
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer over the given storage and indices.
func NewIndexer(store storage.Storage, keywordIndex keyword.Index, vectorIndex vector.Index, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		storage:      store,
		keywordIndex: keywordIndex,
		vectorIndex:  vectorIndex,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexEntry indexes entry text, the analysis fields (analysis may be nil), and the embedding.
func (idx *Indexer) IndexEntry(ctx context.Context, entry *models.Entry, analysis *models.Analysis) error {
	if err := idx.keywordIndex.Index(ctx, entry, analysis); err != nil {
		return fmt.Errorf("failed to index keywords: %w", err)
	}
	if err := idx.vectorIndex.Upsert(ctx, entry.OwnerID, entry.ID, entry.Embedding); err != nil {
		return fmt.Errorf("failed to index vector: %w", err)
	}
	idx.logger.Debug("indexer entry indexed",
		zap.String("entry_id", entry.ID),
		zap.Bool("analysis", analysis != nil),
		zap.Int("dimensions", len(entry.Embedding)))
	return nil
}

// Refresh re-reads the entry and its latest analysis from storage and indexes them.
func (idx *Indexer) Refresh(ctx context.Context, id string) error {
	entry, err := idx.storage.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	analysis, err := idx.storage.GetLatestAnalysis(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return idx.IndexEntry(ctx, entry, analysis)
}

// RemoveEntry removes an entry from both indices.
func (idx *Indexer) RemoveEntry(ctx context.Context, id string) error {
	if err := idx.keywordIndex.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from keyword index: %w", err)
	}
	if err := idx.vectorIndex.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	idx.logger.Debug("indexer entry removed", zap.String("entry_id", id))
	return nil
}

// Rebuild loads every stored embedding into the vector index, and repopulates the
// keyword index when it is empty but storage is not. It returns the number of
// vectors loaded.
func (idx *Indexer) Rebuild(ctx context.Context) (int, error) {
	withEmbeddings, err := idx.storage.ListEntriesWithEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("list embeddings: %w", err)
	}
	for _, e := range withEmbeddings {
		if err := idx.vectorIndex.Upsert(ctx, e.OwnerID, e.ID, e.Embedding); err != nil {
			return 0, fmt.Errorf("index vector %s: %w", e.ID, err)
		}
	}

	docs, err := idx.keywordIndex.DocCount()
	if err != nil {
		return len(withEmbeddings), fmt.Errorf("keyword doc count: %w", err)
	}
	entries, err := idx.storage.CountEntries(ctx)
	if err != nil {
		return len(withEmbeddings), fmt.Errorf("count entries: %w", err)
	}
	if docs == 0 && entries > 0 {
		if err := idx.reindexKeywords(ctx); err != nil {
			return len(withEmbeddings), err
		}
	}
	idx.logger.Info("Search indices rebuilt",
		zap.Int("vectors", len(withEmbeddings)),
		zap.Int64("entries", entries))
	return len(withEmbeddings), nil
}

func (idx *Indexer) reindexKeywords(ctx context.Context) error {
	owners, err := idx.storage.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}
	for _, owner := range owners {
		entries, err := idx.storage.ListEntries(ctx, owner)
		if err != nil {
			return fmt.Errorf("list entries for %s: %w", owner, err)
		}
		latest, err := idx.storage.LatestAnalysesByOwner(ctx, owner)
		if err != nil {
			return fmt.Errorf("list analyses for %s: %w", owner, err)
		}
		for _, e := range entries {
			if err := idx.keywordIndex.Index(ctx, e, latest[e.ID]); err != nil {
				return fmt.Errorf("index entry %s: %w", e.ID, err)
			}
		}
	}
	return nil
}
