// Package worker runs the structural analyzer as an isolated process, one per call,
// exchanging a single JSON document over stdin and stdout.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hyperjump/somnia/internal/models"
	"github.com/hyperjump/somnia/pkg/utils"
	"go.uber.org/zap"
)

// ErrWorker is returned when the process fails to start, exits non-zero, times out,
// or writes output that cannot be parsed.
var ErrWorker = errors.New("worker: analyzer process failed")

const stderrLogLimit = 2048

// Result is the single-mode outcome. Both fields may be empty.
type Result struct {
	Embedding []float32
	Analysis  Analysis
}

// Client spawns the worker command.
type Client struct {
	command string
	args    []string
	env     []string
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for worker diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout bounds each process run. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithEnv appends environment variables (KEY=value) to the worker's environment.
func WithEnv(env ...string) Option {
	return func(c *Client) {
		c.env = append(c.env, env...)
	}
}

// New creates a client that runs command with args.
func New(command string, args []string, opts ...Option) *Client {
	c := &Client{
		command: command,
		args:    append([]string(nil), args...),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnalyzeStructure runs the worker in single mode.
func (c *Client) AnalyzeStructure(ctx context.Context, text string) (Result, error) {
	var resp SingleResponse
	if err := c.run(ctx, nil, SingleRequest{Content: text}, &resp); err != nil {
		return Result{}, err
	}
	res := Result{Embedding: resp.Embedding}
	if resp.Analysis != nil {
		res.Analysis = *resp.Analysis
	}
	return res, nil
}

// SummarizeWeek runs the worker in aggregate mode. A response without a synthesis
// is treated as a failure.
func (c *Client) SummarizeWeek(ctx context.Context, entries []*models.Entry) (*models.WeeklySynthesis, error) {
	req := WeeklyRequest{Dreams: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		req.Dreams = append(req.Dreams, NewEntry(e))
	}

	var resp WeeklyResponse
	if err := c.run(ctx, []string{ModeWeekly}, req, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Synthesis) == "" {
		return nil, fmt.Errorf("%w: empty synthesis", ErrWorker)
	}
	return &models.WeeklySynthesis{
		Synthesis:        strings.TrimSpace(resp.Synthesis),
		Archetypes:       utils.Dedupe(resp.Archetypes),
		EmotionalClimate: strings.TrimSpace(resp.EmotionalClimate),
		Patterns:         utils.CleanList(resp.Patterns),
	}, nil
}

func (c *Client) run(ctx context.Context, extra []string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: encode request: %w", ErrWorker, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), c.args...), extra...)
	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	fields := []zap.Field{
		zap.String("command", c.command),
		zap.Strings("args", args),
		zap.Duration("elapsed", time.Since(start)),
	}
	if s := strings.TrimSpace(stderr.String()); s != "" {
		fields = append(fields, zap.String("stderr", utils.Truncate(s, stderrLogLimit)))
	}

	if runErr != nil {
		if ctx.Err() != nil {
			runErr = fmt.Errorf("%w (%w)", runErr, ctx.Err())
		}
		c.logger.Warn("Worker process failed", append(fields, zap.Error(runErr))...)
		return fmt.Errorf("%w: %w", ErrWorker, runErr)
	}

	raw := bytes.TrimSpace(stdout.Bytes())
	if len(raw) == 0 {
		c.logger.Warn("Worker produced no output", fields...)
		return fmt.Errorf("%w: empty output", ErrWorker)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("Worker output is not valid JSON", append(fields, zap.Int("bytes", len(raw)), zap.Error(err))...)
		return fmt.Errorf("%w: decode output: %w", ErrWorker, err)
	}
	c.logger.Debug("Worker finished", fields...)
	return nil
}
