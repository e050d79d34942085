// Package synthesis aggregates a trailing window of entries into a weekly synthesis.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/somnia/internal/models"
	"go.uber.org/zap"
)

// ErrAggregation is returned when the structural analyzer cannot produce a synthesis
// for a non-empty window.
var ErrAggregation = errors.New("synthesis: aggregation failed")

// Summarizer is the aggregate mode of the structural analyzer.
type Summarizer interface {
	SummarizeWeek(ctx context.Context, entries []*models.Entry) (*models.WeeklySynthesis, error)
}

// Window returns the closed interval [now-span, now].
func Window(now time.Time, span time.Duration) (from, to time.Time) {
	return now.Add(-span), now
}

// InWindow returns the entries whose OccurredAt lies in [from, to], preserving order.
func InWindow(entries []*models.Entry, from, to time.Time) []*models.Entry {
	out := make([]*models.Entry, 0, len(entries))
	for _, e := range entries {
		if e.OccurredAt.Before(from) || e.OccurredAt.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Aggregator turns a set of entries into a WeeklyReport.
type Aggregator struct {
	summarizer Summarizer
	logger     *zap.Logger
}

// NewAggregator creates an aggregator. A nil logger is replaced with a no-op logger.
func NewAggregator(s Summarizer, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{summarizer: s, logger: logger}
}

// SummarizeWeek returns the no-entries notice for an empty set without calling the
// summarizer. Otherwise any summarizer failure is returned wrapped in ErrAggregation.
func (a *Aggregator) SummarizeWeek(ctx context.Context, entries []*models.Entry) (*models.WeeklyReport, error) {
	if len(entries) == 0 {
		return &models.WeeklyReport{Message: models.NoEntriesMessage}, nil
	}
	syn, err := a.summarizer.SummarizeWeek(ctx, entries)
	if err != nil {
		a.logger.Error("Weekly synthesis failed", zap.Int("entries", len(entries)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrAggregation, err)
	}
	return &models.WeeklyReport{Synthesis: syn}, nil
}
