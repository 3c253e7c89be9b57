// Package cli provides the command-line interface for threadsync.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/threadsync/internal/config"
	"github.com/raphaelgruber/threadsync/internal/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	verbose    bool

	// Global config, logger and metrics
	cfg       config.Config
	logger    *slog.Logger
	collector *metrics.Collector

	// closers run after every command, in reverse order.
	closers []func()
)

// errRunFailed makes the process exit non-zero after a failure was already
// rendered.
var errRunFailed = errors.New("run failed")

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "threadsync",
	Short: "Sync Discord conversations into a knowledge base",
	Long: `Threadsync copies Discord messages into knowledge pages exactly once.

Messages from a forum post land on the page for that post. Messages without
a thread are filed onto the best matching page by the completion service, or
onto a new page. Attachments are copied into blob storage and linked.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Load()
		}

		level := cfg.Level()
		if verbose {
			level = slog.LevelDebug
		}
		var closeLog func() error
		logger, closeLog = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		closers = append(closers, func() { _ = closeLog() })

		collector = metrics.NewCollector()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeAll()
	},
}

func closeAll() {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	closers = nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// An interrupt cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	// PersistentPostRun is skipped when RunE fails.
	closeAll()
	if err != nil && !errors.Is(err, errRunFailed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (environment variables override it)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(pagesCmd)
	rootCmd.AddCommand(versionCmd)
}
