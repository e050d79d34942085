package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/somnia/internal/cli"
	"github.com/hyperjump/somnia/internal/extract"
	"github.com/hyperjump/somnia/internal/inbox"
	"github.com/hyperjump/somnia/internal/models"
	"github.com/hyperjump/somnia/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServerCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API and watch the journal inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), g)
		},
	}
}

func runServer(ctx context.Context, g *globals) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, logger := g.cfg, g.logger

	c, err := initializeComponents(ctx, g, true)
	if err != nil {
		return err
	}
	defer c.Close()

	opts := []server.Option{server.WithLogger(logger)}
	if cfg.Inbox.OwnerID != "" {
		importer := newImporter(g, c, cfg.Inbox.OwnerID, cfg.Inbox.AutoAnalyze)
		w := inbox.NewWatcher(importer.Handler(ctx), cfg.Inbox.Extensions, cfg.Inbox.RecursiveOrDefault(),
			inbox.WithWatcherLogger(logger))
		if err := w.Start(ctx, cfg.Inbox.Directories); err != nil {
			return fmt.Errorf("start inbox watcher: %w", err)
		}
		defer w.Stop()
		go w.ScanAll()
		opts = append(opts, server.WithInbox(w, g.resolvedPath))
	}

	srv := server.NewServer(c.Storage, c.Pipeline, c.Engine, c.Indexer, cfg, opts...)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func newAnalyzeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <entry-id>",
		Short: "Analyze one entry and store the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initializeComponents(cmd.Context(), g, true)
			if err != nil {
				return err
			}
			defer c.Close()
			analysis, err := c.Pipeline.Analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return cli.WriteAnalysis(cmd.OutOrStdout(), analysis, g.format)
		},
	}
}

func newWeeklyCmd(g *globals) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Summarize the owner's entries from the last week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := resolveOwner(g, owner)
			if err != nil {
				return err
			}
			c, err := initializeComponents(cmd.Context(), g, true)
			if err != nil {
				return err
			}
			defer c.Close()
			report, err := c.Pipeline.WeeklySynthesis(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return cli.WriteWeekly(cmd.OutOrStdout(), report, g.format)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner ID (default: inbox.owner_id)")
	return cmd
}

func newEntriesCmd(g *globals) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List the owner's entries with their latest analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := resolveOwner(g, owner)
			if err != nil {
				return err
			}
			c, err := initializeComponents(cmd.Context(), g, false)
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := cmd.Context()
			entries, err := c.Storage.ListEntries(ctx, owner)
			if err != nil {
				return err
			}
			latest, err := c.Storage.LatestAnalysesByOwner(ctx, owner)
			if err != nil {
				return err
			}
			out := make([]models.EntryWithAnalysis, 0, len(entries))
			for _, e := range entries {
				out = append(out, models.EntryWithAnalysis{Entry: e, Analysis: latest[e.ID]})
			}
			return cli.WriteEntries(cmd.OutOrStdout(), out, g.format)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner ID (default: inbox.owner_id)")
	return cmd
}

func newSearchCmd(g *globals) *cobra.Command {
	var (
		owner string
		limit int
		fuzzy bool
	)
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Keyword search over the owner's entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := resolveOwner(g, owner)
			if err != nil {
				return err
			}
			c, err := initializeComponents(cmd.Context(), g, false)
			if err != nil {
				return err
			}
			defer c.Close()
			resp, err := c.Engine.Search(cmd.Context(), owner, buildQuery(args), limit, fuzzy)
			if err != nil {
				return err
			}
			return cli.WriteSearch(cmd.OutOrStdout(), resp, g.format)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner ID (default: inbox.owner_id)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (default: search.default_limit)")
	cmd.Flags().BoolVar(&fuzzy, "fuzzy", false, "tolerate typos")
	return cmd
}

// importResult is one line of import output.
type importResult struct {
	Path    string `json:"path"`
	EntryID string `json:"entry_id,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newImportCmd(g *globals) *cobra.Command {
	var (
		owner   string
		analyze bool
	)
	cmd := &cobra.Command{
		Use:   "import <file-or-directory...>",
		Short: "Import journal files as entries",
		Long: `Imports .txt, .md, .pdf and .docx files as entries of the owner. Directories are
walked recursively. Re-importing a file updates the entry it created.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := resolveOwner(g, owner)
			if err != nil {
				return err
			}
			c, err := initializeComponents(cmd.Context(), g, analyze)
			if err != nil {
				return err
			}
			defer c.Close()
			importer := newImporter(g, c, owner, analyze)

			paths, err := collectFiles(args)
			if err != nil {
				return err
			}
			results := make([]importResult, 0, len(paths))
			failed := 0
			for _, p := range paths {
				res := importResult{Path: p}
				entry, outcome, err := importer.Import(cmd.Context(), p)
				if err != nil {
					res.Error = err.Error()
					failed++
				} else {
					res.EntryID, res.Outcome = entry.ID, outcome.String()
				}
				results = append(results, res)
			}
			if err := writeImportResults(cmd.OutOrStdout(), results, g.format); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed to import", failed, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner ID (default: inbox.owner_id)")
	cmd.Flags().BoolVar(&analyze, "analyze", false, "analyze every created or changed entry")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "somnia version %s\n", version)
		},
	}
}

func newImporter(g *globals, c *components, owner string, analyze bool) *inbox.Importer {
	opts := []inbox.Option{
		inbox.WithLogger(g.logger),
		inbox.WithIndexer(c.Indexer),
	}
	if analyze && c.Pipeline != nil {
		opts = append(opts, inbox.WithAutoAnalyze(c.Pipeline))
	}
	return inbox.NewImporter(c.Storage, owner, opts...)
}

// resolveOwner returns the --owner flag, falling back to the inbox owner from config.
func resolveOwner(g *globals, flagValue string) (string, error) {
	if owner := strings.TrimSpace(flagValue); owner != "" {
		return owner, nil
	}
	if g.cfg != nil && g.cfg.Inbox.OwnerID != "" {
		return g.cfg.Inbox.OwnerID, nil
	}
	return "", errors.New("--owner is required (or set inbox.owner_id in config)")
}

// buildQuery joins positional args into one query, so quoting is optional.
func buildQuery(args []string) string {
	return strings.Join(strings.Fields(strings.Join(args, " ")), " ")
}

// collectFiles expands directories into the supported files beneath them.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && extract.Supported(filepath.Ext(p)) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func writeImportResults(w io.Writer, results []importResult, format cli.OutputFormat) error {
	if format == cli.OutputJSON {
		return cli.WriteJSON(w, results)
	}
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "failed     %s: %s\n", r.Path, r.Error)
			continue
		}
		fmt.Fprintf(w, "%-10s %s  %s\n", r.Outcome, r.EntryID, r.Path)
	}
	return nil
}
