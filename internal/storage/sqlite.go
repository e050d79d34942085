package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/somnia/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		occurred_at TIMESTAMP NOT NULL,
		emotion TEXT,
		sentiment_score INTEGER,
		embedding TEXT,
		is_favorite INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_entries_owner_occurred ON entries(owner_id, occurred_at);

	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		interpretation TEXT NOT NULL,
		symbols TEXT,
		themes TEXT,
		patterns TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_entry_created ON analyses(entry_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

const entryColumns = `id, owner_id, title, content, occurred_at, emotion, sentiment_score, embedding, is_favorite, created_at, updated_at`

const analysisColumns = `id, entry_id, interpretation, symbols, themes, patterns, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var (
		e         models.Entry
		emotion   sql.NullString
		sentiment sql.NullInt64
		embedding sql.NullString
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Content, &e.OccurredAt,
		&emotion, &sentiment, &embedding, &e.IsFavorite, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if emotion.Valid {
		e.Emotion = &emotion.String
	}
	if sentiment.Valid {
		score := int(sentiment.Int64)
		e.SentimentScore = &score
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &e.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}
	}
	return &e, nil
}

func scanAnalysis(row rowScanner) (*models.Analysis, error) {
	var (
		a                         models.Analysis
		symbols, themes, patterns sql.NullString
	)
	if err := row.Scan(&a.ID, &a.EntryID, &a.Interpretation, &symbols, &themes, &patterns, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(symbols, &a.Symbols); err != nil {
		return nil, fmt.Errorf("failed to unmarshal symbols: %w", err)
	}
	if err := unmarshalNullable(themes, &a.Themes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal themes: %w", err)
	}
	if err := unmarshalNullable(patterns, &a.Patterns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patterns: %w", err)
	}
	return &a, nil
}

func unmarshalNullable(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}

func nullableEmbedding(embedding []float32) (any, error) {
	if embedding == nil {
		return nil, nil
	}
	b, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return string(b), nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// CreateEntry inserts an entry. An ID is generated when empty.
func (s *SQLiteStorage) CreateEntry(ctx context.Context, entry *models.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	embedding, err := nullableEmbedding(entry.Embedding)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	entry.OccurredAt = entry.OccurredAt.UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.OwnerID, entry.Title, entry.Content, entry.OccurredAt,
		nullableString(entry.Emotion), nullableInt(entry.SentimentScore), embedding,
		entry.IsFavorite, entry.CreatedAt, entry.UpdatedAt,
	)
	return err
}

// GetEntry returns an entry by ID.
func (s *SQLiteStorage) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateEntry replaces the user-editable fields of an existing entry.
func (s *SQLiteStorage) UpdateEntry(ctx context.Context, entry *models.Entry) error {
	entry.UpdatedAt = time.Now().UTC()
	entry.OccurredAt = entry.OccurredAt.UTC()

	result, err := s.db.ExecContext(ctx,
		`UPDATE entries SET title = ?, content = ?, occurred_at = ?, emotion = ?, is_favorite = ?, updated_at = ?
		 WHERE id = ?`,
		entry.Title, entry.Content, entry.OccurredAt, nullableString(entry.Emotion),
		entry.IsFavorite, entry.UpdatedAt, entry.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("entry %s: %w", entry.ID, ErrNotFound)
	}
	return nil
}

// PatchEntry writes analysis metadata onto an entry and returns the updated entry.
func (s *SQLiteStorage) PatchEntry(ctx context.Context, id string, patch models.EntryPatch) (*models.Entry, error) {
	embedding := patch.Embedding
	if embedding == nil {
		embedding = []float32{}
	}
	embeddingJSON, err := nullableEmbedding(embedding)
	if err != nil {
		return nil, err
	}

	sets := []string{"embedding = ?", "updated_at = ?"}
	args := []any{embeddingJSON, time.Now().UTC()}
	if patch.Emotion != nil {
		sets = append(sets, "emotion = ?")
		args = append(args, *patch.Emotion)
	}
	if patch.SentimentScore != nil {
		sets = append(sets, "sentiment_score = ?")
		args = append(args, *patch.SentimentScore)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		`UPDATE entries SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return s.GetEntry(ctx, id)
}

// DeleteEntry removes an entry and its analyses.
func (s *SQLiteStorage) DeleteEntry(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM analyses WHERE entry_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListEntries returns all entries of an owner, most recent occurrence first.
func (s *SQLiteStorage) ListEntries(ctx context.Context, ownerID string) ([]*models.Entry, error) {
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE owner_id = ? ORDER BY occurred_at DESC`, ownerID)
}

// ListEntriesWithEmbeddings returns every entry that has a non-empty embedding.
func (s *SQLiteStorage) ListEntriesWithEmbeddings(ctx context.Context) ([]*models.Entry, error) {
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE embedding IS NOT NULL AND embedding != '[]'`)
}

// ListOwners returns the distinct owners that have at least one entry.
func (s *SQLiteStorage) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM entries ORDER BY owner_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func (s *SQLiteStorage) queryEntries(ctx context.Context, query string, args ...any) ([]*models.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CreateAnalysis inserts an analysis for an existing entry, assigning its ID and timestamp.
func (s *SQLiteStorage) CreateAnalysis(ctx context.Context, analysis *models.Analysis) (*models.Analysis, error) {
	symbols, err := json.Marshal(nonNil(analysis.Symbols))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal symbols: %w", err)
	}
	themes, err := json.Marshal(nonNil(analysis.Themes))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal themes: %w", err)
	}
	patterns := analysis.Patterns
	patterns.Archetypes = nonNil(patterns.Archetypes)
	patterns.Triggers = nonNil(patterns.Triggers)
	patternsJSON, err := json.Marshal(patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patterns: %w", err)
	}

	out := *analysis
	out.ID = uuid.New().String()
	out.CreatedAt = time.Now().UTC()
	out.Symbols = nonNil(analysis.Symbols)
	out.Themes = nonNil(analysis.Themes)
	out.Patterns = patterns

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (`+analysisColumns+`)
		 SELECT ?, ?, ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM entries WHERE id = ?)`,
		out.ID, out.EntryID, out.Interpretation, string(symbols), string(themes), string(patternsJSON),
		out.CreatedAt, out.EntryID,
	)
	if err != nil {
		return nil, err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("entry %s: %w", out.EntryID, ErrNotFound)
	}
	return &out, nil
}

// GetLatestAnalysis returns the most recently created analysis for an entry.
// Ties on created_at are broken by insertion order.
func (s *SQLiteStorage) GetLatestAnalysis(ctx context.Context, entryID string) (*models.Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE entry_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`, entryID)
	analysis, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis for entry %s: %w", entryID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

// ListAnalyses returns every analysis of an entry, newest first.
func (s *SQLiteStorage) ListAnalyses(ctx context.Context, entryID string) ([]*models.Analysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE entry_id = ?
		 ORDER BY created_at DESC, rowid DESC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*models.Analysis
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, analysis)
	}
	return analyses, rows.Err()
}

// LatestAnalysesByOwner returns the latest analysis of each of the owner's entries, keyed by entry ID.
func (s *SQLiteStorage) LatestAnalysesByOwner(ctx context.Context, ownerID string) (map[string]*models.Analysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.entry_id, a.interpretation, a.symbols, a.themes, a.patterns, a.created_at
		 FROM analyses a
		 JOIN entries e ON e.id = a.entry_id
		 WHERE e.owner_id = ?
		   AND a.rowid = (
		     SELECT a2.rowid FROM analyses a2 WHERE a2.entry_id = a.entry_id
		     ORDER BY a2.created_at DESC, a2.rowid DESC LIMIT 1
		   )`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	latest := make(map[string]*models.Analysis)
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		latest[analysis.EntryID] = analysis
	}
	return latest, rows.Err()
}

// CountEntries returns the total number of entries.
func (s *SQLiteStorage) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count)
	return count, err
}

// CountAnalyses returns the total number of analyses.
func (s *SQLiteStorage) CountAnalyses(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
