// Command somnia-worker answers one structural analysis request per run.
//
// It reads a JSON request from stdin and writes one JSON document to stdout. With no
// argument it analyzes a single entry; with "weekly" it summarizes a set of entries.
// Logs go to stderr.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/somnia/internal/config"
	"github.com/hyperjump/somnia/internal/embedding"
	"github.com/hyperjump/somnia/internal/llm"
	"github.com/hyperjump/somnia/internal/structural"
	"github.com/hyperjump/somnia/internal/worker"
	"github.com/hyperjump/somnia/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const configEnv = "SOMNIA_CONFIG"

// loadConfig reads path when set, otherwise returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newEmbedder loads the ONNX model. A load failure is logged and the worker continues
// without embeddings.
func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) embedding.Embedder {
	e, err := embedding.NewONNXEmbedder(embedding.Options{
		ModelPath:      cfg.ModelPath,
		RuntimeLibrary: cfg.RuntimeLibrary,
		Dimensions:     cfg.Dimensions,
		MaxTokens:      cfg.MaxTokens,
	})
	if err != nil {
		logger.Warn("Embedding model unavailable, continuing without embeddings",
			zap.String("model_path", cfg.ModelPath), zap.Error(err))
		return nil
	}
	return e
}

func run(ctx context.Context, configPath, mode string, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	opts := []structural.Option{structural.WithLogger(logger)}
	if mode == "" {
		if e := newEmbedder(cfg.Embedding, logger); e != nil {
			defer func() { _ = e.Close() }()
			opts = append(opts, structural.WithEmbedder(e))
		}
	}
	return structural.New(client, opts...).Serve(ctx, mode, in, out)
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "somnia-worker [weekly]",
		Short:         "Structural analysis worker (JSON on stdin, JSON on stdout)",
		Args:          cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs:     []string{worker.ModeWeekly},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := ""
			if len(args) == 1 {
				mode = args[0]
			}
			return run(cmd.Context(), configPath, mode, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv(configEnv), "config file path (env "+configEnv+")")
	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "somnia-worker:", err)
		os.Exit(1)
	}
}
