// Package keyword provides owner-scoped full-text search over journal entries.
package keyword

import (
	"context"

	"github.com/hyperjump/somnia/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score contribution from title matches. Values <= 1 disable it.
	TitleBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits (1 or 2, default 2).
	FuzzyEnabled bool
	Fuzziness    int
}

// Index defines keyword indexing and search operations.
type Index interface {
	// Index adds or replaces the entry. analysis may be nil.
	Index(ctx context.Context, entry *models.Entry, analysis *models.Analysis) error
	Search(ctx context.Context, ownerID, query string, limit int, opts *SearchOptions) ([]*Result, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword search hit.
type Result struct {
	ID    string
	Score float64
}
