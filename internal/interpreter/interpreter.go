// Package interpreter is the semantic analyzer: one LLM request per entry that returns a
// best-effort structured interpretation.
package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hyperjump/somnia/internal/llm"
	"github.com/hyperjump/somnia/internal/models"
	"go.uber.org/zap"
)

// ErrUpstream is returned when the LLM call fails or its output cannot be parsed.
var ErrUpstream = errors.New("interpreter: upstream failure")

// Instructions is the fixed system instruction sent with every request.
const Instructions = "You are an expert Jungian dream analyst. Interpret this dream, identifying key symbols and psychological themes. " +
	"Return JSON with keys: interpretation (string), symbols (array of strings), themes (array of strings), " +
	"emotion (string), sentimentScore (number -100 to 100)."

const schemaName = "dream_interpretation"

// response is the shape the model is constrained to. Decoding does not rely on it.
type response struct {
	Interpretation string   `json:"interpretation" jsonschema:"description=Narrative interpretation of the dream"`
	Symbols        []string `json:"symbols" jsonschema:"description=Key symbols appearing in the dream"`
	Themes         []string `json:"themes" jsonschema:"description=Psychological themes"`
	Emotion        string   `json:"emotion" jsonschema:"description=Dominant emotion in one word"`
	SentimentScore float64  `json:"sentimentScore" jsonschema:"minimum=-100,maximum=100"`
}

var responseSchema = llm.MustGenerateSchema[response]()

// Result is the interpreter's output. Every field may be absent.
type Result struct {
	Interpretation string
	Symbols        []string
	Themes         []string
	Emotion        *string
	SentimentScore *int
}

// Interpreter calls the LLM for a single entry.
type Interpreter struct {
	client llm.Client
	logger *zap.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

// New creates an interpreter over client.
func New(client llm.Client, opts ...Option) *Interpreter {
	i := &Interpreter{client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Interpret makes exactly one request. On failure it returns a zero Result and an
// error wrapping ErrUpstream.
func (i *Interpreter) Interpret(ctx context.Context, text string) (Result, error) {
	out, err := i.client.CompleteJSON(ctx, llm.Request{
		Instructions: Instructions,
		Input:        text,
		SchemaName:   schemaName,
		Schema:       responseSchema,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	var fields map[string]json.RawMessage
	if err := llm.DecodeJSON(out, &fields); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	res := Parse(fields)
	i.logger.Debug("Interpretation parsed",
		zap.Int("symbols", len(res.Symbols)),
		zap.Int("themes", len(res.Themes)),
		zap.Bool("has_emotion", res.Emotion != nil),
		zap.Bool("has_score", res.SentimentScore != nil))
	return res, nil
}

// Parse coerces decoded fields into a Result. Fields of the wrong type are dropped.
func Parse(fields map[string]json.RawMessage) Result {
	var res Result
	if s, ok := text(fields["interpretation"]); ok {
		res.Interpretation = s
	}
	res.Symbols = list(fields["symbols"])
	res.Themes = list(fields["themes"])
	if s, ok := text(fields["emotion"]); ok && s != "" {
		res.Emotion = &s
	}
	res.SentimentScore = score(fields["sentimentScore"])
	return res
}

func text(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// list accepts an array of strings or a single string. Non-string items are skipped.
func list(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	if s, ok := text(raw); ok {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// score accepts a number or a numeric string, rounds it and clamps it to the sentiment range.
func score(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		s, ok := text(raw)
		if !ok {
			return nil
		}
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return nil
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f = math.Max(models.SentimentMin, math.Min(models.SentimentMax, f))
	v := int(math.Round(f))
	return &v
}
