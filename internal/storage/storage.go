// Package storage defines the persistence interface for journal entries and their analyses.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/somnia/internal/models"
)

// ErrNotFound is returned when a requested entry or analysis does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines entry and analysis persistence operations.
type Storage interface {
	// Entry operations
	CreateEntry(ctx context.Context, entry *models.Entry) error
	GetEntry(ctx context.Context, id string) (*models.Entry, error)
	UpdateEntry(ctx context.Context, entry *models.Entry) error
	PatchEntry(ctx context.Context, id string, patch models.EntryPatch) (*models.Entry, error)
	DeleteEntry(ctx context.Context, id string) error
	ListEntries(ctx context.Context, ownerID string) ([]*models.Entry, error)
	ListEntriesWithEmbeddings(ctx context.Context) ([]*models.Entry, error)
	ListOwners(ctx context.Context) ([]string, error)

	// Analysis operations
	CreateAnalysis(ctx context.Context, analysis *models.Analysis) (*models.Analysis, error)
	GetLatestAnalysis(ctx context.Context, entryID string) (*models.Analysis, error)
	ListAnalyses(ctx context.Context, entryID string) ([]*models.Analysis, error)
	LatestAnalysesByOwner(ctx context.Context, ownerID string) (map[string]*models.Analysis, error)

	// Stats
	CountEntries(ctx context.Context) (int64, error)
	CountAnalyses(ctx context.Context) (int64, error)

	Close() error
}
