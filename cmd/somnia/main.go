// Package main is the somnia CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/somnia/internal/cli"
	"github.com/hyperjump/somnia/internal/config"
	"github.com/hyperjump/somnia/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/somnia/config.yaml"

// ConfigEnv names the config file for the worker process.
const ConfigEnv = "SOMNIA_CONFIG"

// globals holds the persistent flags and what PersistentPreRunE derives from them.
type globals struct {
	configPath string
	debug      bool
	output     string

	cfg          *config.Config
	resolvedPath string
	format       cli.OutputFormat
	logger       *zap.Logger
}

// loadConfig loads config from path. When path is the default and ./config.yaml exists,
// that file is used instead so commands run from a project directory pick up its config.
// When neither exists, defaults are used. Returns the path actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "somnia",
		Short:         "Dream journal analysis service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, resolved, err := loadConfig(g.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			format, err := cli.ParseFormat(g.output)
			if err != nil {
				return err
			}
			logger, err := utils.NewLogger(cfg.Debug || g.debug)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			g.cfg, g.resolvedPath, g.format, g.logger = cfg, resolved, format, logger
			logger.Debug("config loaded", zap.String("config_path", resolved))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", string(cli.OutputText), "output format: text or json")

	root.AddCommand(
		newServerCmd(g),
		newAnalyzeCmd(g),
		newWeeklyCmd(g),
		newImportCmd(g),
		newEntriesCmd(g),
		newSearchCmd(g),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
