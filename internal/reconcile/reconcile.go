// Package reconcile merges the two analyzer results into one analysis record and one
// metadata patch for the source entry.
package reconcile

import (
	"strings"

	"github.com/hyperjump/somnia/internal/interpreter"
	"github.com/hyperjump/somnia/internal/models"
	"github.com/hyperjump/somnia/internal/worker"
	"github.com/hyperjump/somnia/pkg/utils"
)

// Reconcile never fails. For interpretation, symbols and themes the structural result
// wins when non-empty, then the interpreter's, then the fallback. Patterns and the
// embedding come only from the structural result; emotion and sentiment only from
// the interpreter. Either result may be the zero value.
func Reconcile(entry *models.Entry, a interpreter.Result, b worker.Result) (*models.Analysis, models.EntryPatch) {
	analysis := &models.Analysis{
		EntryID:        entry.ID,
		Interpretation: firstText(b.Analysis.Interpretation, a.Interpretation, models.FallbackInterpretation),
		Symbols:        firstList(b.Analysis.Symbols, a.Symbols),
		Themes:         firstList(b.Analysis.Themes, a.Themes),
		Patterns: models.Patterns{
			EmbeddingGenerated: len(b.Embedding) > 0,
			Archetypes:         utils.CleanList(b.Analysis.Archetypes),
			Triggers:           utils.CleanList(b.Analysis.Triggers),
		},
	}

	patch := models.EntryPatch{
		Emotion:   a.Emotion,
		Embedding: []float32{},
	}
	if a.SentimentScore != nil {
		score := models.ClampSentiment(*a.SentimentScore)
		patch.SentimentScore = &score
	}
	if len(b.Embedding) > 0 {
		patch.Embedding = b.Embedding
	}
	return analysis, patch
}

func firstText(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

func firstList(candidates ...[]string) []string {
	for _, c := range candidates {
		if cleaned := utils.CleanList(c); len(cleaned) > 0 {
			return cleaned
		}
	}
	return []string{}
}
