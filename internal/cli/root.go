// Package cli provides the command-line interface for prospector.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shanehull/prospector/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	verbose    bool

	cfg       config.Config
	logger    *slog.Logger
	closeLogs func() error
	deps      *app
)

var rootCmd = &cobra.Command{
	Use:   "prospector",
	Short: "Browse lead categories and run enriched company searches",
	Long: `Prospector pages through lead categories pulled from Pronto, member
directories and CSV exports, and runs enriched company searches against the
search backend with a local 24h enrichment cache.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		normalized, res := config.NormalizeAndValidate(loaded)
		if err := res.Err(); err != nil {
			return err
		}
		cfg = normalized

		level := config.ParseLevel(cfg.Log.Level)
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLogs = config.SetupLogger(cfg.Log.File, level)
		for _, w := range res.Warnings {
			logger.Warn("Config warning", "warning", w)
		}
		return nil
	},
}

// getApp builds the components on first use. Commands that never touch the
// network or the cache (token) do not pay for it.
func getApp(ctx context.Context) (*app, error) {
	if deps != nil {
		return deps, nil
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	deps = a
	return deps, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	defer shutdown()
	return rootCmd.ExecuteContext(ctx)
}

// shutdown runs after every command, failed ones included.
func shutdown() {
	if deps != nil {
		if err := deps.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close cache store: %v\n", err)
		}
		deps = nil
	}
	if closeLogs != nil {
		_ = closeLogs()
		closeLogs = nil
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "prospector.yml", "path to YAML config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(pageCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(tokenCmd)
}
