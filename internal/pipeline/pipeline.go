// Package pipeline orchestrates a single analyze request (fetch, fan out to both analyzers,
// reconcile, persist) and the weekly synthesis over a trailing window.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/somnia/internal/config"
	"github.com/hyperjump/somnia/internal/interpreter"
	"github.com/hyperjump/somnia/internal/models"
	"github.com/hyperjump/somnia/internal/reconcile"
	"github.com/hyperjump/somnia/internal/storage"
	"github.com/hyperjump/somnia/internal/synthesis"
	"github.com/hyperjump/somnia/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound is returned when the requested entry does not exist.
	ErrNotFound = errors.New("entry not found")
	// ErrPersistence is returned when a storage read or write fails.
	ErrPersistence = errors.New("persistence failure")
)

// Store is the storage the pipeline needs.
type Store interface {
	GetEntry(ctx context.Context, id string) (*models.Entry, error)
	ListEntries(ctx context.Context, ownerID string) ([]*models.Entry, error)
	CreateAnalysis(ctx context.Context, a *models.Analysis) (*models.Analysis, error)
	PatchEntry(ctx context.Context, id string, patch models.EntryPatch) (*models.Entry, error)
}

// Interpreter is the semantic analyzer.
type Interpreter interface {
	Interpret(ctx context.Context, text string) (interpreter.Result, error)
}

// StructuralAnalyzer is the structural analyzer in both of its modes.
type StructuralAnalyzer interface {
	AnalyzeStructure(ctx context.Context, text string) (worker.Result, error)
	synthesis.Summarizer
}

// AnalyzedFunc runs after both writes of a successful analyze request.
type AnalyzedFunc func(ctx context.Context, entry *models.Entry, analysis *models.Analysis) error

// Orchestrator runs analyze and weekly synthesis requests. It holds no per-request state
// and is safe for concurrent use.
type Orchestrator struct {
	store       Store
	interpreter Interpreter
	structural  StructuralAnalyzer
	aggregator  *synthesis.Aggregator
	window      time.Duration
	now         func() time.Time
	onAnalyzed  []AnalyzedFunc
	logger      *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithWindow sets the weekly synthesis window (default 7 days).
func WithWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithClock sets the time source used to compute the synthesis window.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithAnalyzedHook registers fn to run after each persisted analysis. Hook errors are
// logged and do not fail the request.
func WithAnalyzedHook(fn AnalyzedFunc) Option {
	return func(o *Orchestrator) {
		o.onAnalyzed = append(o.onAnalyzed, fn)
	}
}

// New creates an orchestrator.
func New(store Store, interp Interpreter, structural StructuralAnalyzer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		interpreter: interp,
		structural:  structural,
		window:      config.DefaultWindow,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.aggregator = synthesis.NewAggregator(structural, o.logger)
	return o
}

// Analyze runs the full pipeline for one entry. Once started it ignores cancellation of
// ctx. It fails only with ErrNotFound or ErrPersistence; analyzer failures degrade to
// empty results.
func (o *Orchestrator) Analyze(ctx context.Context, entryID string) (*models.Analysis, error) {
	ctx = context.WithoutCancel(ctx)
	log := o.logger.With(zap.String("entry_id", entryID))
	start := time.Now()

	o.enter(log, StateFetching)
	entry, err := o.store.GetEntry(ctx, entryID)
	if err != nil {
		o.enter(log, StateAborted)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, entryID)
		}
		return nil, fmt.Errorf("%w: fetch entry: %w", ErrPersistence, err)
	}

	o.enter(log, StateAwaitingAnalyzers)
	a, b := o.runAnalyzers(ctx, log, entry.Content)

	o.enter(log, StateMerging)
	analysis, patch := reconcile.Reconcile(entry, a, b)

	o.enter(log, StatePersisting)
	saved, err := o.store.CreateAnalysis(ctx, analysis)
	if err != nil {
		log.Error("Failed to store analysis", zap.Error(err))
		return nil, fmt.Errorf("%w: create analysis: %w", ErrPersistence, err)
	}
	updated, err := o.store.PatchEntry(ctx, entry.ID, patch)
	if err != nil {
		// The analysis row is already committed; nothing rolls it back.
		log.Error("Analysis stored but entry metadata not updated",
			zap.String("analysis_id", saved.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: patch entry: %w", ErrPersistence, err)
	}

	o.enter(log, StateDone)
	for _, fn := range o.onAnalyzed {
		if err := fn(ctx, updated, saved); err != nil {
			log.Warn("Post-analysis hook failed", zap.Error(err))
		}
	}
	log.Info("Entry analyzed",
		zap.String("analysis_id", saved.ID),
		zap.Bool("embedding_generated", saved.Patterns.EmbeddingGenerated),
		zap.Duration("elapsed", time.Since(start)))
	return saved, nil
}

// runAnalyzers runs both analyzers concurrently and waits for both. A failure or panic
// in either is logged and replaced by its zero result.
func (o *Orchestrator) runAnalyzers(ctx context.Context, log *zap.Logger, text string) (interpreter.Result, worker.Result) {
	var (
		a interpreter.Result
		b worker.Result
		g errgroup.Group
	)
	g.Go(func() error {
		defer recoverAnalyzer(log, "interpreter")
		res, err := o.interpreter.Interpret(ctx, text)
		if err != nil {
			log.Warn("Interpreter failed, using empty result", zap.Error(err))
			return nil
		}
		a = res
		return nil
	})
	g.Go(func() error {
		defer recoverAnalyzer(log, "structural")
		res, err := o.structural.AnalyzeStructure(ctx, text)
		if err != nil {
			log.Warn("Structural analyzer failed, using empty result", zap.Error(err))
			return nil
		}
		b = res
		return nil
	})
	_ = g.Wait()
	return a, b
}

func recoverAnalyzer(log *zap.Logger, name string) {
	if r := recover(); r != nil {
		log.Error("Analyzer panicked, using empty result", zap.String("analyzer", name), zap.Any("panic", r))
	}
}

func (o *Orchestrator) enter(log *zap.Logger, s State) {
	log.Debug("Pipeline state", zap.Stringer("state", s))
}

// WeeklySynthesis summarizes the owner's entries that occurred within the window ending
// now. The window is computed on every call.
func (o *Orchestrator) WeeklySynthesis(ctx context.Context, ownerID string) (*models.WeeklyReport, error) {
	entries, err := o.store.ListEntries(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %w", ErrPersistence, err)
	}
	from, to := synthesis.Window(o.now(), o.window)
	recent := synthesis.InWindow(entries, from, to)
	o.logger.Debug("Weekly synthesis",
		zap.String("owner_id", ownerID),
		zap.Time("from", from),
		zap.Int("entries", len(recent)))
	return o.aggregator.SummarizeWeek(ctx, recent)
}
