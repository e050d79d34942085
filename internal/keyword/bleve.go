package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/somnia/internal/models"
)

// searchFields are the analyzed text fields a query runs against.
var searchFields = []string{"title", "content", "interpretation", "symbols", "themes"}

// document is the indexed form of an entry and its latest analysis.
type document struct {
	OwnerID        string   `json:"owner_id"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Emotion        string   `json:"emotion,omitempty"`
	Interpretation string   `json:"interpretation,omitempty"`
	Symbols        []string `json:"symbols,omitempty"`
	Themes         []string `json:"themes,omitempty"`
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an
// in-memory index. Remove the index directory after changing the mapping.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			index, openErr := bleve.Open(path)
			if openErr != nil {
				return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
			}
			return &BleveIndex{index: index}, nil
		}
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer: lowercase + tokenize, no stemming, so "glass" matches "Glass" exactly.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	for _, f := range searchFields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("owner_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("emotion", keywordFieldMapping)
	im.AddDocumentMapping("entry", docMapping)
	im.DefaultType = "entry"
	im.DefaultMapping = docMapping

	var (
		index bleve.Index
		err   error
	)
	if path == "" {
		index, err = bleve.NewMemOnly(im)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		index, err = bleve.New(path, im)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces the entry, including the analysis fields when analysis is non-nil.
func (b *BleveIndex) Index(ctx context.Context, entry *models.Entry, analysis *models.Analysis) error {
	doc := document{
		OwnerID: entry.OwnerID,
		Title:   entry.Title,
		Content: entry.Content,
	}
	if entry.Emotion != nil {
		doc.Emotion = *entry.Emotion
	}
	if analysis != nil {
		doc.Interpretation = analysis.Interpretation
		doc.Symbols = analysis.Symbols
		doc.Themes = analysis.Themes
	}
	return b.index.Index(entry.ID, doc)
}

// Search returns up to limit of the owner's entries matching query in any text field.
func (b *BleveIndex) Search(ctx context.Context, ownerID, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	titleBoost := 1.0
	fuzziness := 0
	if opts != nil {
		if opts.TitleBoost > 1 {
			titleBoost = opts.TitleBoost
		}
		if opts.FuzzyEnabled {
			fuzziness = 2
			if opts.Fuzziness > 0 {
				fuzziness = opts.Fuzziness
			}
		}
	}

	fieldQueries := make([]blevequery.Query, 0, len(searchFields))
	for _, field := range searchFields {
		q := buildFieldQuery(query, field, fuzziness)
		if field == "title" && titleBoost > 1 {
			q.(blevequery.BoostableQuery).SetBoost(titleBoost)
		}
		fieldQueries = append(fieldQueries, q)
	}
	owner := bleve.NewTermQuery(ownerID)
	owner.SetField("owner_id")

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(owner, bleve.NewDisjunctionQuery(fieldQueries...)))
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFieldQuery matches query against field. With fuzziness > 0 each term becomes a
// FuzzyQuery and any term may match.
func buildFieldQuery(query, field string, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(query)
	if fuzziness == 0 || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes an entry from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the number of indexed entries.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
