// Package models defines core data structures for journal entries, analyses, and weekly syntheses.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// SentimentMin and SentimentMax bound an entry's sentiment score.
const (
	SentimentMin = -100
	SentimentMax = 100
)

var validate = validator.New()

// Entry is a single journal record owned by one user.
type Entry struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	OccurredAt     time.Time `json:"occurred_at"`
	Emotion        *string   `json:"emotion,omitempty"`
	SentimentScore *int      `json:"sentiment_score,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
	IsFavorite     bool      `json:"is_favorite"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EntryWithAnalysis is an entry joined with its latest analysis, if any.
type EntryWithAnalysis struct {
	*Entry
	Analysis *Analysis `json:"analysis"`
}

// EntryPatch is the metadata written back onto an entry after analysis.
// Nil Emotion or SentimentScore leaves the stored value untouched.
// Embedding is always written; an empty slice clears it.
type EntryPatch struct {
	Emotion        *string
	SentimentScore *int
	Embedding      []float32
}

// EntryInput is the input for creating an entry.
type EntryInput struct {
	ID         string    `json:"id,omitempty"`
	Title      string    `json:"title" validate:"required,min=1,max=200"`
	Content    string    `json:"content" validate:"required"`
	OccurredAt time.Time `json:"occurred_at" validate:"required"`
	Emotion    *string   `json:"emotion,omitempty" validate:"omitempty,max=64"`
	IsFavorite bool      `json:"is_favorite,omitempty"`
}

// Validate checks field constraints and trims the title.
func (in *EntryInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}
	return nil
}

// EntryUpdate is a partial update of the user-editable fields of an entry.
type EntryUpdate struct {
	Title      *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Content    *string    `json:"content,omitempty" validate:"omitempty,min=1"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
	Emotion    *string    `json:"emotion,omitempty" validate:"omitempty,max=64"`
	IsFavorite *bool      `json:"is_favorite,omitempty"`
}

// Validate checks field constraints.
func (u *EntryUpdate) Validate() error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("invalid entry update: %w", err)
	}
	return nil
}

// Apply copies the set fields of u onto e.
func (u *EntryUpdate) Apply(e *Entry) {
	if u.Title != nil {
		e.Title = strings.TrimSpace(*u.Title)
	}
	if u.Content != nil {
		e.Content = *u.Content
	}
	if u.OccurredAt != nil {
		e.OccurredAt = *u.OccurredAt
	}
	if u.Emotion != nil {
		e.Emotion = u.Emotion
	}
	if u.IsFavorite != nil {
		e.IsFavorite = *u.IsFavorite
	}
}

// ClampSentiment bounds score to [SentimentMin, SentimentMax].
func ClampSentiment(score int) int {
	if score < SentimentMin {
		return SentimentMin
	}
	if score > SentimentMax {
		return SentimentMax
	}
	return score
}
