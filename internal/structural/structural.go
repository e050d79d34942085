// Package structural implements the worker side of the structural analyzer: it embeds a
// single entry and asks the LLM for archetypes and triggers, or synthesizes a week of entries.
package structural

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/somnia/internal/embedding"
	"github.com/hyperjump/somnia/internal/llm"
	"github.com/hyperjump/somnia/internal/worker"
	"github.com/hyperjump/somnia/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const analysisInstructions = `As a psychological dream analyst, analyze the dream content you are given.
Provide:
1. Symbolic interpretation (Jungian/Freudian perspective)
2. Key symbols and psychological themes
3. Key archetypes identified
4. Potential psychological triggers
Return the result as a JSON object with keys: interpretation (string), symbols (list), themes (list), archetypes (list), triggers (list).`

const weeklyInstructions = `Analyze this collection of dreams from the past week, given as JSON.
Identify overarching psychological patterns:
1. Recurring symbols and their evolving meaning.
2. Dominant archetypes across all entries.
3. Psychological growth or regression trends.
4. Emotional climate summary.
Provide a deep psychological synthesis. Even if there are few dreams, analyze the core subconscious signals.
Return a JSON object with keys: synthesis (string), patterns (list of strings), archetypes (list of strings), emotional_climate (string).`

var (
	analysisSchema = llm.MustGenerateSchema[worker.Analysis]()
	weeklySchema   = llm.MustGenerateSchema[worker.WeeklyResponse]()
)

// Analyzer answers worker requests.
type Analyzer struct {
	client   llm.Client
	embedder embedding.Embedder
	logger   *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithEmbedder sets the embedder. Without one, single-mode responses carry an empty embedding.
func WithEmbedder(e embedding.Embedder) Option {
	return func(a *Analyzer) {
		a.embedder = e
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// New creates an Analyzer backed by client.
func New(client llm.Client, opts ...Option) *Analyzer {
	a := &Analyzer{client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze embeds content and runs the structural LLM analysis concurrently.
func (a *Analyzer) Analyze(ctx context.Context, content string) (*worker.SingleResponse, error) {
	resp := &worker.SingleResponse{Embedding: []float32{}}
	var analysis worker.Analysis

	g, gctx := errgroup.WithContext(ctx)
	if a.embedder != nil {
		g.Go(func() error {
			vec, err := a.embedder.Embed(gctx, content)
			if err != nil {
				return fmt.Errorf("embedding: %w", err)
			}
			resp.Embedding = vec
			return nil
		})
	}
	g.Go(func() error {
		out, err := a.client.CompleteJSON(gctx, llm.Request{
			Instructions: analysisInstructions,
			Input:        content,
			SchemaName:   "dream_structure",
			Schema:       analysisSchema,
		})
		if err != nil {
			return fmt.Errorf("structural analysis: %w", err)
		}
		if err := llm.DecodeJSON(out, &analysis); err != nil {
			return fmt.Errorf("structural analysis: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	analysis.Interpretation = strings.TrimSpace(analysis.Interpretation)
	analysis.Symbols = utils.CleanList(analysis.Symbols)
	analysis.Themes = utils.CleanList(analysis.Themes)
	analysis.Archetypes = utils.Dedupe(analysis.Archetypes)
	analysis.Triggers = utils.CleanList(analysis.Triggers)
	resp.Analysis = &analysis
	a.logger.Debug("Structural analysis complete",
		zap.Int("dimensions", len(resp.Embedding)),
		zap.Int("archetypes", len(analysis.Archetypes)))
	return resp, nil
}

// SummarizeWeek synthesizes patterns across dreams.
func (a *Analyzer) SummarizeWeek(ctx context.Context, dreams []worker.Entry) (*worker.WeeklyResponse, error) {
	payload, err := json.Marshal(dreams)
	if err != nil {
		return nil, fmt.Errorf("encode dreams: %w", err)
	}
	out, err := a.client.CompleteJSON(ctx, llm.Request{
		Instructions: weeklyInstructions,
		Input:        string(payload),
		SchemaName:   "weekly_synthesis",
		Schema:       weeklySchema,
	})
	if err != nil {
		return nil, fmt.Errorf("weekly synthesis: %w", err)
	}
	var resp worker.WeeklyResponse
	if err := llm.DecodeJSON(out, &resp); err != nil {
		return nil, fmt.Errorf("weekly synthesis: %w", err)
	}
	if strings.TrimSpace(resp.Synthesis) == "" {
		return nil, errors.New("weekly synthesis: model returned no synthesis")
	}
	resp.Archetypes = utils.Dedupe(resp.Archetypes)
	resp.Patterns = utils.CleanList(resp.Patterns)
	a.logger.Debug("Weekly synthesis complete", zap.Int("dreams", len(dreams)))
	return &resp, nil
}

// Serve reads one request from in, answers it, and writes one JSON document to out.
// Empty input, or a single-mode request with empty content, produces no output.
func (a *Analyzer) Serve(ctx context.Context, mode string, in io.Reader, out io.Writer) error {
	input, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	if len(strings.TrimSpace(string(input))) == 0 {
		return nil
	}

	var result any
	switch mode {
	case worker.ModeWeekly:
		var req worker.WeeklyRequest
		if err := json.Unmarshal(input, &req); err != nil {
			return fmt.Errorf("decode weekly request: %w", err)
		}
		if result, err = a.SummarizeWeek(ctx, req.Dreams); err != nil {
			return err
		}
	case "":
		var req worker.SingleRequest
		if err := json.Unmarshal(input, &req); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}
		if strings.TrimSpace(req.Content) == "" {
			return nil
		}
		if result, err = a.Analyze(ctx, req.Content); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	return json.NewEncoder(out).Encode(result)
}
