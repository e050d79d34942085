package worker

import (
	"time"

	"github.com/hyperjump/somnia/internal/models"
)

// ModeWeekly is the positional argument that switches the worker into aggregate mode.
const ModeWeekly = "weekly"

// Analysis is the structural analysis embedded in a single-mode response.
type Analysis struct {
	Interpretation string   `json:"interpretation,omitempty"`
	Symbols        []string `json:"symbols,omitempty"`
	Themes         []string `json:"themes,omitempty"`
	Archetypes     []string `json:"archetypes,omitempty"`
	Triggers       []string `json:"triggers,omitempty"`
}

// SingleRequest is written to the worker's stdin in single mode.
type SingleRequest struct {
	Content string `json:"content"`
}

// SingleResponse is read from the worker's stdout in single mode.
type SingleResponse struct {
	Embedding []float32 `json:"embedding"`
	Analysis  *Analysis `json:"analysis,omitempty"`
}

// Entry is the form of an entry sent to the worker in aggregate mode. Embeddings are omitted.
type Entry struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Date           time.Time `json:"date"`
	Emotion        *string   `json:"emotion,omitempty"`
	SentimentScore *int      `json:"sentiment_score,omitempty"`
}

// WeeklyRequest is written to the worker's stdin in aggregate mode.
type WeeklyRequest struct {
	Dreams []Entry `json:"dreams"`
}

// WeeklyResponse is read from the worker's stdout in aggregate mode.
type WeeklyResponse struct {
	Synthesis        string   `json:"synthesis"`
	Patterns         []string `json:"patterns,omitempty"`
	Archetypes       []string `json:"archetypes"`
	EmotionalClimate string   `json:"emotional_climate"`
}

// NewEntry converts a stored entry to its aggregate-mode form.
func NewEntry(e *models.Entry) Entry {
	return Entry{
		ID:             e.ID,
		Title:          e.Title,
		Content:        e.Content,
		Date:           e.OccurredAt,
		Emotion:        e.Emotion,
		SentimentScore: e.SentimentScore,
	}
}
