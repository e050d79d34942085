package models

import "time"

// FallbackInterpretation is stored when neither analyzer produced an interpretation.
const FallbackInterpretation = "Analysis failed."

// NoEntriesMessage is returned by the weekly synthesis when the window holds no entries.
const NoEntriesMessage = "no entries this week"

// Analysis is the persisted result of one analyze run for an entry.
type Analysis struct {
	ID             string    `json:"id"`
	EntryID        string    `json:"entry_id"`
	Interpretation string    `json:"interpretation"`
	Symbols        []string  `json:"symbols"`
	Themes         []string  `json:"themes"`
	Patterns       Patterns  `json:"patterns"`
	CreatedAt      time.Time `json:"created_at"`
}

// Patterns is auxiliary structural metadata attached to an analysis.
type Patterns struct {
	EmbeddingGenerated bool     `json:"embedding_generated"`
	Archetypes         []string `json:"archetypes"`
	Triggers           []string `json:"triggers"`
}

// WeeklySynthesis is a cross-entry summary over a trailing window. It is never persisted.
type WeeklySynthesis struct {
	Synthesis        string   `json:"synthesis"`
	Archetypes       []string `json:"archetypes"`
	EmotionalClimate string   `json:"emotional_climate"`
	Patterns         []string `json:"patterns,omitempty"`
}

// WeeklyReport is either a synthesis or the no-entries notice.
type WeeklyReport struct {
	Synthesis *WeeklySynthesis
	Message   string
}

// Empty reports whether the report is the no-entries notice.
func (r *WeeklyReport) Empty() bool {
	return r.Synthesis == nil
}
