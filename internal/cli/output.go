// Package cli renders command results for the somnia CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/somnia/internal/models"
	"github.com/hyperjump/somnia/internal/search"
	"github.com/hyperjump/somnia/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is indented JSON for other programs.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

const (
	rule           = "─────────────────────────────────────────────────────────"
	previewLength  = 200
	textListIndent = "  - "
)

// WriteAnalysis writes one analysis.
func WriteAnalysis(w io.Writer, a *models.Analysis, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, a)
	}
	fmt.Fprintf(w, "Analysis %s (entry %s)\n%s\n", a.ID, a.EntryID, rule)
	fmt.Fprintf(w, "%s\n\n", a.Interpretation)
	writeList(w, "Symbols", a.Symbols)
	writeList(w, "Themes", a.Themes)
	writeList(w, "Archetypes", a.Patterns.Archetypes)
	writeList(w, "Triggers", a.Patterns.Triggers)
	fmt.Fprintf(w, "Embedding generated: %t\n", a.Patterns.EmbeddingGenerated)
	return nil
}

// WriteWeekly writes a weekly synthesis, or the no-entries notice.
func WriteWeekly(w io.Writer, r *models.WeeklyReport, format OutputFormat) error {
	if format == OutputJSON {
		if r.Empty() {
			return WriteJSON(w, map[string]string{"message": r.Message})
		}
		return WriteJSON(w, r.Synthesis)
	}
	if r.Empty() {
		fmt.Fprintln(w, r.Message)
		return nil
	}
	fmt.Fprintf(w, "Weekly synthesis\n%s\n%s\n\n", rule, r.Synthesis.Synthesis)
	if r.Synthesis.EmotionalClimate != "" {
		fmt.Fprintf(w, "Emotional climate: %s\n", r.Synthesis.EmotionalClimate)
	}
	writeList(w, "Archetypes", r.Synthesis.Archetypes)
	writeList(w, "Patterns", r.Synthesis.Patterns)
	return nil
}

// WriteEntries writes a list of entries with their latest analysis, newest first.
func WriteEntries(w io.Writer, entries []models.EntryWithAnalysis, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, entries)
	}
	fmt.Fprintf(w, "%d entries\n", len(entries))
	for _, e := range entries {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "%s  %s  %s\n", e.OccurredAt.Format("2006-01-02 15:04"), e.ID, e.Title)
		if e.Emotion != nil {
			fmt.Fprintf(w, "Emotion: %s", *e.Emotion)
			if e.SentimentScore != nil {
				fmt.Fprintf(w, " (%+d)", *e.SentimentScore)
			}
			fmt.Fprintln(w)
		}
		if e.Analysis != nil {
			fmt.Fprintf(w, "%s\n", utils.Truncate(e.Analysis.Interpretation, previewLength))
		} else {
			fmt.Fprintln(w, "(not analyzed)")
		}
	}
	return nil
}

// WriteSearch writes keyword search hits.
func WriteSearch(w io.Writer, resp *search.Response, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "Found %d entries for %q in %dms\n", resp.Total, resp.Query, resp.QueryTime)
	for i, h := range resp.Hits {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "%d. %s  %s (score %.4f)\n", i+1, h.Entry.ID, h.Entry.Title, h.Score)
		if h.Snippet != "" {
			fmt.Fprintf(w, "%s\n", h.Snippet)
		}
	}
	return nil
}

func writeList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", label)
	for _, item := range items {
		fmt.Fprintf(w, "%s%s\n", textListIndent, item)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
