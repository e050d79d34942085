package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/somnia/internal/interpreter"
	"github.com/hyperjump/somnia/internal/models"
	"github.com/hyperjump/somnia/internal/storage"
	"github.com/hyperjump/somnia/internal/synthesis"
	"github.com/hyperjump/somnia/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func ptr[T any](v T) *T { return &v }

type memStore struct {
	mu        sync.Mutex
	entries   map[string]*models.Entry
	analyses  []*models.Analysis
	patches   []models.EntryPatch
	createErr error
	patchErr  error
	listErr   error
	getCalls  atomic.Int32
	nextID    int
}

func newMemStore(entries ...*models.Entry) *memStore {
	s := &memStore{entries: make(map[string]*models.Entry)}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return s
}

func (s *memStore) GetEntry(_ context.Context, id string) (*models.Entry, error) {
	s.getCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) ListEntries(_ context.Context, ownerID string) ([]*models.Entry, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Entry
	for _, e := range s.entries {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) CreateAnalysis(_ context.Context, a *models.Analysis) (*models.Analysis, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := *a
	cp.ID = fmt.Sprintf("analysis-%d", s.nextID)
	cp.CreatedAt = time.Now()
	s.analyses = append(s.analyses, &cp)
	return &cp, nil
}

func (s *memStore) PatchEntry(_ context.Context, id string, p models.EntryPatch) (*models.Entry, error) {
	if s.patchErr != nil {
		return nil, s.patchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches = append(s.patches, p)
	e := s.entries[id]
	if p.Emotion != nil {
		e.Emotion = p.Emotion
	}
	if p.SentimentScore != nil {
		e.SentimentScore = p.SentimentScore
	}
	e.Embedding = p.Embedding
	cp := *e
	return &cp, nil
}

type fakeInterpreter struct {
	res   interpreter.Result
	err   error
	calls atomic.Int32
	wait  <-chan struct{}
	panic bool
}

func (f *fakeInterpreter) Interpret(ctx context.Context, _ string) (interpreter.Result, error) {
	f.calls.Add(1)
	if f.wait != nil {
		select {
		case <-f.wait:
		case <-time.After(5 * time.Second):
			return interpreter.Result{}, errors.New("structural analyzer never started")
		}
	}
	if f.panic {
		panic("interpreter exploded")
	}
	return f.res, f.err
}

type fakeStructural struct {
	res     worker.Result
	err     error
	weekly  *models.WeeklySynthesis
	wErr    error
	calls   atomic.Int32
	wCalls  atomic.Int32
	started chan struct{}
	got     []*models.Entry
	ctxErr  error
}

func (f *fakeStructural) AnalyzeStructure(ctx context.Context, _ string) (worker.Result, error) {
	f.calls.Add(1)
	if f.started != nil {
		close(f.started)
	}
	f.ctxErr = ctx.Err()
	return f.res, f.err
}

func (f *fakeStructural) SummarizeWeek(_ context.Context, entries []*models.Entry) (*models.WeeklySynthesis, error) {
	f.wCalls.Add(1)
	f.got = entries
	return f.weekly, f.wErr
}

var glassForest = &models.Entry{
	ID:         "e1",
	OwnerID:    "u1",
	Title:      "Glass forest",
	Content:    "I was flying over a glass forest",
	OccurredAt: time.Now().Add(-time.Hour),
}

var transcendence = interpreter.Result{
	Interpretation: "A journey of transcendence",
	Symbols:        []string{"flight", "glass"},
	Themes:         []string{"freedom"},
	Emotion:        ptr("wonder"),
	SentimentScore: ptr(60),
}

func TestAnalyze_StructuralFails(t *testing.T) {
	store := newMemStore(glassForest)
	interp := &fakeInterpreter{res: transcendence}
	structural := &fakeStructural{err: fmt.Errorf("%w: exit status 1", worker.ErrWorker)}
	core, logs := observer.New(zapcore.WarnLevel)

	analysis, err := New(store, interp, structural, WithLogger(zap.New(core))).Analyze(context.Background(), "e1")
	require.NoError(t, err)

	assert.Equal(t, "A journey of transcendence", analysis.Interpretation)
	assert.Equal(t, []string{"flight", "glass"}, analysis.Symbols)
	assert.Equal(t, []string{"freedom"}, analysis.Themes)
	assert.Equal(t, models.Patterns{Archetypes: []string{}, Triggers: []string{}}, analysis.Patterns)

	require.Len(t, store.patches, 1)
	patch := store.patches[0]
	assert.Equal(t, "wonder", *patch.Emotion)
	assert.Equal(t, 60, *patch.SentimentScore)
	assert.Equal(t, []float32{}, patch.Embedding)

	assert.Equal(t, 1, logs.FilterMessage("Structural analyzer failed, using empty result").Len())
}

func TestAnalyze_BothFail(t *testing.T) {
	store := newMemStore(glassForest)
	interp := &fakeInterpreter{err: interpreter.ErrUpstream}
	structural := &fakeStructural{err: worker.ErrWorker}

	analysis, err := New(store, interp, structural).Analyze(context.Background(), "e1")
	require.NoError(t, err)

	assert.Equal(t, models.FallbackInterpretation, analysis.Interpretation)
	assert.Equal(t, []string{}, analysis.Symbols)
	assert.Equal(t, []string{}, analysis.Themes)
	require.Len(t, store.analyses, 1, "an analysis record is written even when both analyzers fail")

	patch := store.patches[0]
	assert.Nil(t, patch.Emotion)
	assert.Nil(t, patch.SentimentScore)
	assert.Equal(t, []float32{}, patch.Embedding)
}

func TestAnalyze_AnalyzerPanicDegrades(t *testing.T) {
	store := newMemStore(glassForest)
	interp := &fakeInterpreter{panic: true}
	structural := &fakeStructural{res: worker.Result{Embedding: []float32{0.3}}}

	analysis, err := New(store, interp, structural).Analyze(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.FallbackInterpretation, analysis.Interpretation)
	assert.True(t, analysis.Patterns.EmbeddingGenerated)
}

func TestAnalyze_StructuralPrecedence(t *testing.T) {
	store := newMemStore(glassForest)
	interp := &fakeInterpreter{res: transcendence}
	structural := &fakeStructural{res: worker.Result{
		Embedding: []float32{0.1, 0.2, 0.3},
		Analysis:  worker.Analysis{Symbols: []string{"forest", "sky"}, Archetypes: []string{"hero"}},
	}}

	analysis, err := New(store, interp, structural).Analyze(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, []string{"forest", "sky"}, analysis.Symbols)
	assert.Equal(t, "A journey of transcendence", analysis.Interpretation)
	assert.True(t, analysis.Patterns.EmbeddingGenerated)
	assert.Equal(t, []string{"hero"}, analysis.Patterns.Archetypes)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, store.patches[0].Embedding)
}

func TestAnalyze_NotFound(t *testing.T) {
	store := newMemStore()
	interp := &fakeInterpreter{}
	structural := &fakeStructural{}

	_, err := New(store, interp, structural).Analyze(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 1, store.getCalls.Load())
	assert.Zero(t, interp.calls.Load(), "no interpreter call for a missing entry")
	assert.Zero(t, structural.calls.Load(), "no worker spawn for a missing entry")
	assert.Empty(t, store.analyses)
}

func TestAnalyze_RunsAnalyzersConcurrently(t *testing.T) {
	started := make(chan struct{})
	store := newMemStore(glassForest)
	// The interpreter blocks until the structural analyzer has started.
	interp := &fakeInterpreter{res: transcendence, wait: started}
	structural := &fakeStructural{started: started}

	analysis, err := New(store, interp, structural).Analyze(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "A journey of transcendence", analysis.Interpretation)
}

func TestAnalyze_IgnoresCallerCancellation(t *testing.T) {
	store := newMemStore(glassForest)
	structural := &fakeStructural{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(store, &fakeInterpreter{res: transcendence}, structural).Analyze(ctx, "e1")
	require.NoError(t, err)
	assert.NoError(t, structural.ctxErr, "analyzers must not see the caller's cancellation")
	assert.Len(t, store.analyses, 1)
}

func TestAnalyze_PersistenceErrors(t *testing.T) {
	t.Run("create analysis", func(t *testing.T) {
		store := newMemStore(glassForest)
		store.createErr = errors.New("disk full")
		_, err := New(store, &fakeInterpreter{}, &fakeStructural{}).Analyze(context.Background(), "e1")
		require.ErrorIs(t, err, ErrPersistence)
		assert.Empty(t, store.patches)
	})

	t.Run("patch entry after analysis stored", func(t *testing.T) {
		store := newMemStore(glassForest)
		store.patchErr = errors.New("database is locked")
		core, logs := observer.New(zapcore.ErrorLevel)
		_, err := New(store, &fakeInterpreter{res: transcendence}, &fakeStructural{}, WithLogger(zap.New(core))).
			Analyze(context.Background(), "e1")
		require.ErrorIs(t, err, ErrPersistence)
		// The first write is not rolled back.
		assert.Len(t, store.analyses, 1)
		assert.Equal(t, 1, logs.FilterMessage("Analysis stored but entry metadata not updated").Len())
	})
}

func TestAnalyze_Hooks(t *testing.T) {
	store := newMemStore(glassForest)
	var hooked *models.Entry
	failing := func(context.Context, *models.Entry, *models.Analysis) error { return errors.New("index closed") }
	recording := func(_ context.Context, e *models.Entry, _ *models.Analysis) error {
		hooked = e
		return nil
	}
	structural := &fakeStructural{res: worker.Result{Embedding: []float32{1, 0}}}

	_, err := New(store, &fakeInterpreter{}, structural, WithAnalyzedHook(failing), WithAnalyzedHook(recording)).
		Analyze(context.Background(), "e1")
	require.NoError(t, err, "hook failures do not fail the request")
	require.NotNil(t, hooked)
	assert.Equal(t, []float32{1, 0}, hooked.Embedding, "hooks see the patched entry")
}

func TestAnalyze_StateTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	_, err := New(newMemStore(glassForest), &fakeInterpreter{}, &fakeStructural{}, WithLogger(zap.New(core))).
		Analyze(context.Background(), "e1")
	require.NoError(t, err)

	var states []string
	for _, e := range logs.FilterMessage("Pipeline state").All() {
		states = append(states, e.ContextMap()["state"].(string))
	}
	assert.Equal(t, []string{"fetching", "awaiting_analyzers", "merging", "persisting", "done"}, states)

	core, logs = observer.New(zapcore.DebugLevel)
	_, _ = New(newMemStore(), &fakeInterpreter{}, &fakeStructural{}, WithLogger(zap.New(core))).
		Analyze(context.Background(), "missing")
	states = nil
	for _, e := range logs.FilterMessage("Pipeline state").All() {
		states = append(states, e.ContextMap()["state"].(string))
	}
	assert.Equal(t, []string{"fetching", "aborted"}, states)
}

func TestWeeklySynthesis(t *testing.T) {
	now := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	store := newMemStore(
		&models.Entry{ID: "old", OwnerID: "u1", OccurredAt: now.Add(-8 * 24 * time.Hour)},
		&models.Entry{ID: "recent", OwnerID: "u1", OccurredAt: now.Add(-24 * time.Hour)},
		&models.Entry{ID: "other-owner", OwnerID: "u2", OccurredAt: now.Add(-time.Hour)},
	)
	structural := &fakeStructural{weekly: &models.WeeklySynthesis{Synthesis: "Water recurs.", Archetypes: []string{"shadow"}}}
	o := New(store, &fakeInterpreter{}, structural, WithClock(func() time.Time { return now }))

	report, err := o.WeeklySynthesis(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, report.Empty())
	assert.Equal(t, "Water recurs.", report.Synthesis.Synthesis)
	require.Len(t, structural.got, 1)
	assert.Equal(t, "recent", structural.got[0].ID)
}

func TestWeeklySynthesis_NoEntries(t *testing.T) {
	now := time.Now()
	store := newMemStore(&models.Entry{ID: "old", OwnerID: "u1", OccurredAt: now.Add(-30 * 24 * time.Hour)})
	structural := &fakeStructural{}

	report, err := New(store, &fakeInterpreter{}, structural).WeeklySynthesis(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Equal(t, models.NoEntriesMessage, report.Message)
	assert.Zero(t, structural.wCalls.Load())
}

func TestWeeklySynthesis_Errors(t *testing.T) {
	now := time.Now()
	recent := &models.Entry{ID: "r", OwnerID: "u1", OccurredAt: now.Add(-time.Hour)}

	_, err := New(newMemStore(recent), &fakeInterpreter{}, &fakeStructural{wErr: worker.ErrWorker}).
		WeeklySynthesis(context.Background(), "u1")
	require.ErrorIs(t, err, synthesis.ErrAggregation)
	assert.ErrorIs(t, err, worker.ErrWorker)

	store := newMemStore()
	store.listErr = errors.New("no such table")
	_, err = New(store, &fakeInterpreter{}, &fakeStructural{}).WeeklySynthesis(context.Background(), "u1")
	require.ErrorIs(t, err, ErrPersistence)
}

func TestWeeklySynthesis_CustomWindow(t *testing.T) {
	now := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	store := newMemStore(&models.Entry{ID: "two-days", OwnerID: "u1", OccurredAt: now.Add(-48 * time.Hour)})
	structural := &fakeStructural{}
	o := New(store, &fakeInterpreter{}, structural, WithWindow(24*time.Hour), WithClock(func() time.Time { return now }))

	report, err := o.WeeklySynthesis(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, report.Empty())
}

func TestAnalyze_WithSQLiteStorage(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "somnia.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	entry := &models.Entry{OwnerID: "u1", Title: "Glass forest", Content: "I was flying over a glass forest", OccurredAt: time.Now()}
	require.NoError(t, store.CreateEntry(ctx, entry))

	o := New(store, &fakeInterpreter{res: transcendence}, &fakeStructural{err: worker.ErrWorker})
	analysis, err := o.Analyze(ctx, entry.ID)
	require.NoError(t, err)

	latest, err := store.GetLatestAnalysis(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.ID, latest.ID)
	assert.Equal(t, []string{"flight", "glass"}, latest.Symbols)
	assert.False(t, latest.Patterns.EmbeddingGenerated)

	got, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "wonder", *got.Emotion)
	assert.Equal(t, 60, *got.SentimentScore)
	assert.Empty(t, got.Embedding)

	// Re-analysis appends a new record; the latest one wins.
	second, err := o.Analyze(ctx, entry.ID)
	require.NoError(t, err)
	latest, err = store.GetLatestAnalysis(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}
