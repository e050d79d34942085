package reconcile

import (
	"testing"

	"github.com/hyperjump/somnia/internal/interpreter"
	"github.com/hyperjump/somnia/internal/models"
	"github.com/hyperjump/somnia/internal/worker"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

var entry = &models.Entry{ID: "e1", Content: "I was flying over a glass forest"}

var resultA = interpreter.Result{
	Interpretation: "A journey of transcendence",
	Symbols:        []string{"flight", "glass"},
	Themes:         []string{"freedom"},
	Emotion:        ptr("wonder"),
	SentimentScore: ptr(60),
}

func TestReconcile_StructuralWins(t *testing.T) {
	b := worker.Result{
		Embedding: []float32{0.1, 0.2},
		Analysis: worker.Analysis{
			Interpretation: "An ascent beyond fragility",
			Symbols:        []string{"forest"},
			Archetypes:     []string{"hero"},
			Triggers:       []string{"heights"},
		},
	}
	analysis, patch := Reconcile(entry, resultA, b)

	assert.Equal(t, "e1", analysis.EntryID)
	assert.Equal(t, "An ascent beyond fragility", analysis.Interpretation)
	assert.Equal(t, []string{"forest"}, analysis.Symbols, "structural symbols replace the interpreter's")
	assert.Equal(t, []string{"freedom"}, analysis.Themes, "interpreter themes fill in when the structural list is empty")
	assert.Equal(t, models.Patterns{EmbeddingGenerated: true, Archetypes: []string{"hero"}, Triggers: []string{"heights"}}, analysis.Patterns)

	assert.Equal(t, "wonder", *patch.Emotion)
	assert.Equal(t, 60, *patch.SentimentScore)
	assert.Equal(t, []float32{0.1, 0.2}, patch.Embedding)
}

func TestReconcile_StructuralFailed(t *testing.T) {
	analysis, patch := Reconcile(entry, resultA, worker.Result{})

	assert.Equal(t, "A journey of transcendence", analysis.Interpretation)
	assert.Equal(t, []string{"flight", "glass"}, analysis.Symbols)
	assert.Equal(t, []string{"freedom"}, analysis.Themes)
	assert.Equal(t, models.Patterns{EmbeddingGenerated: false, Archetypes: []string{}, Triggers: []string{}}, analysis.Patterns)

	assert.Equal(t, "wonder", *patch.Emotion)
	assert.Equal(t, 60, *patch.SentimentScore)
	assert.NotNil(t, patch.Embedding)
	assert.Empty(t, patch.Embedding)
}

func TestReconcile_BothFailed(t *testing.T) {
	analysis, patch := Reconcile(entry, interpreter.Result{}, worker.Result{})

	assert.Equal(t, models.FallbackInterpretation, analysis.Interpretation)
	assert.Equal(t, []string{}, analysis.Symbols)
	assert.Equal(t, []string{}, analysis.Themes)
	assert.False(t, analysis.Patterns.EmbeddingGenerated)

	assert.Nil(t, patch.Emotion)
	assert.Nil(t, patch.SentimentScore)
	assert.Equal(t, []float32{}, patch.Embedding)
}

func TestReconcile_BlankValuesFallThrough(t *testing.T) {
	b := worker.Result{Analysis: worker.Analysis{Interpretation: "   ", Symbols: []string{" ", ""}}}
	analysis, _ := Reconcile(entry, resultA, b)
	assert.Equal(t, "A journey of transcendence", analysis.Interpretation)
	assert.Equal(t, []string{"flight", "glass"}, analysis.Symbols)
}

func TestReconcile_EmbeddingWithoutAnalysis(t *testing.T) {
	analysis, patch := Reconcile(entry, interpreter.Result{}, worker.Result{Embedding: []float32{1}})
	assert.True(t, analysis.Patterns.EmbeddingGenerated)
	assert.Equal(t, models.FallbackInterpretation, analysis.Interpretation)
	assert.Equal(t, []float32{1}, patch.Embedding)
}

func TestReconcile_SentimentClamped(t *testing.T) {
	_, patch := Reconcile(entry, interpreter.Result{SentimentScore: ptr(-180)}, worker.Result{})
	assert.Equal(t, models.SentimentMin, *patch.SentimentScore)
}
