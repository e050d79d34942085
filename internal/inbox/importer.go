package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/somnia/internal/extract"
	"github.com/hyperjump/somnia/internal/fileid"
	"github.com/hyperjump/somnia/internal/models"
	"github.com/hyperjump/somnia/internal/storage"
	"go.uber.org/zap"
)

// maxTitleRunes matches the entry title limit.
const maxTitleRunes = 200

var (
	// ErrEmptyFile is returned when a file holds no text to import.
	ErrEmptyFile = errors.New("file has no text")

	errNotStarted = errors.New("inbox watcher not started")
)

// Analyzer runs the analysis pipeline for an entry.
type Analyzer interface {
	Analyze(ctx context.Context, entryID string) (*models.Analysis, error)
}

// Indexer keeps search indices in sync with imported entries.
type Indexer interface {
	Refresh(ctx context.Context, id string) error
	RemoveEntry(ctx context.Context, id string) error
}

// Outcome describes what Import did with a file.
type Outcome int

const (
	Created Outcome = iota
	Updated
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Importer converts journal files into entries owned by a single owner.
type Importer struct {
	store       storage.Storage
	ownerID     string
	extractor   *extract.Extractor
	indexer     Indexer
	analyzer    Analyzer
	autoAnalyze bool
	logger      *zap.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the importer logger.
func WithLogger(l *zap.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// WithIndexer refreshes search indices after each import or removal.
func WithIndexer(idx Indexer) Option {
	return func(im *Importer) { im.indexer = idx }
}

// WithAutoAnalyze runs the analyzer on every created or changed entry.
func WithAutoAnalyze(a Analyzer) Option {
	return func(im *Importer) {
		im.analyzer = a
		im.autoAnalyze = a != nil
	}
}

// NewImporter creates an importer that writes entries for ownerID.
func NewImporter(store storage.Storage, ownerID string, opts ...Option) *Importer {
	im := &Importer{
		store:     store,
		ownerID:   ownerID,
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import creates or updates the entry for the file at path. The entry ID is derived
// from the path, the title from the file name, and occurred_at from the modification time.
// A file whose title, text and modification time match the stored entry is left alone.
func (im *Importer) Import(ctx context.Context, path string) (*models.Entry, Outcome, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, Unchanged, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, Unchanged, fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return nil, Unchanged, fmt.Errorf("%s is a directory", abs)
	}
	if !extract.Supported(filepath.Ext(abs)) {
		return nil, Unchanged, fmt.Errorf("%s: %w", abs, extract.ErrUnsupported)
	}
	text, err := im.extractor.Extract(abs)
	if err != nil {
		return nil, Unchanged, fmt.Errorf("extract %s: %w", abs, err)
	}
	if text == "" {
		return nil, Unchanged, fmt.Errorf("%s: %w", abs, ErrEmptyFile)
	}

	id := fileid.EntryID(im.ownerID, abs)
	title := TitleFromPath(abs)
	occurred := info.ModTime().UTC().Truncate(time.Second)

	entry, err := im.store.GetEntry(ctx, id)
	outcome := Updated
	switch {
	case errors.Is(err, storage.ErrNotFound):
		entry = &models.Entry{
			ID:         id,
			OwnerID:    im.ownerID,
			Title:      title,
			Content:    text,
			OccurredAt: occurred,
		}
		if err := im.store.CreateEntry(ctx, entry); err != nil {
			return nil, Unchanged, fmt.Errorf("create entry: %w", err)
		}
		outcome = Created
	case err != nil:
		return nil, Unchanged, err
	case entry.Title == title && entry.Content == text && entry.OccurredAt.Equal(occurred):
		return entry, Unchanged, nil
	default:
		entry.Title = title
		entry.Content = text
		entry.OccurredAt = occurred
		if err := im.store.UpdateEntry(ctx, entry); err != nil {
			return nil, Unchanged, fmt.Errorf("update entry: %w", err)
		}
	}
	im.logger.Info("Imported journal file",
		zap.String("path", abs),
		zap.String("entry_id", id),
		zap.Stringer("outcome", outcome))

	if im.indexer != nil {
		if err := im.indexer.Refresh(ctx, id); err != nil {
			im.logger.Warn("Failed to index imported entry", zap.String("entry_id", id), zap.Error(err))
		}
	}
	if im.autoAnalyze {
		if _, err := im.analyzer.Analyze(ctx, id); err != nil {
			im.logger.Warn("Auto-analysis failed", zap.String("entry_id", id), zap.Error(err))
		}
	}
	return entry, outcome, nil
}

// Remove deletes the entry imported from path, if any.
func (im *Importer) Remove(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	id := fileid.EntryID(im.ownerID, abs)
	if _, err := im.store.GetEntry(ctx, id); errors.Is(err, storage.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if err := im.store.DeleteEntry(ctx, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if im.indexer != nil {
		if err := im.indexer.RemoveEntry(ctx, id); err != nil {
			im.logger.Warn("Failed to unindex removed entry", zap.String("entry_id", id), zap.Error(err))
		}
	}
	im.logger.Info("Removed journal file entry", zap.String("path", abs), zap.String("entry_id", id))
	return nil
}

// Handler adapts the importer to watcher events. Errors are logged.
func (im *Importer) Handler(ctx context.Context) Handler {
	return &importHandler{ctx: ctx, im: im}
}

type importHandler struct {
	ctx context.Context
	im  *Importer
}

func (h *importHandler) FileChanged(path string) {
	if _, _, err := h.im.Import(h.ctx, path); err != nil {
		h.im.logger.Warn("Failed to import journal file", zap.String("path", path), zap.Error(err))
	}
}

func (h *importHandler) FileRemoved(path string) {
	if err := h.im.Remove(h.ctx, path); err != nil {
		h.im.logger.Warn("Failed to remove journal file entry", zap.String("path", path), zap.Error(err))
	}
}

// TitleFromPath derives an entry title from a file name: the extension is dropped
// and underscores become spaces.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.Join(strings.Fields(strings.ReplaceAll(name, "_", " ")), " ")
	if name == "" {
		name = base
	}
	if r := []rune(name); len(r) > maxTitleRunes {
		name = string(r[:maxTitleRunes])
	}
	return name
}
