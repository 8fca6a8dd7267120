// Package cmd provides the CLI commands for amanrecall.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	rerrors "github.com/Aman-CERP/amanrecall/internal/errors"
	"github.com/Aman-CERP/amanrecall/internal/logging"
	"github.com/Aman-CERP/amanrecall/pkg/version"
)

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	debug      bool
	configPath string
	dbPath     string

	loggingCleanup func()
}

// NewRootCmd creates the root command for the amanrecall CLI.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "amanrecall",
		Short: "Hybrid phrase and meaning search over your notes",
		Long: `amanrecall searches a personal knowledge store with two signals at once:
exact phrase matching and embedding similarity, fused with Reciprocal Rank Fusion.

If the embedding backend is down, searches still return phrase matches.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("amanrecall version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging to ~/.amanrecall/logs/")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default: .amanrecall.yaml, then user config)")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "Fragment database (overrides store.path)")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return flags.start()
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		flags.stop()
		return nil
	}

	cmd.AddCommand(newSearchCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newStatsCmd(flags))
	cmd.AddCommand(newConfigCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// start loads .env and installs the default logger.
func (f *globalFlags) start() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := logging.DefaultConfig()
	if f.debug {
		cfg = logging.DebugConfig()
	}
	if err := f.useLogging(cfg); err != nil {
		return err
	}

	if f.debug {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}
	return nil
}

// useLogging replaces the default logger, closing the previous log file.
func (f *globalFlags) useLogging(cfg logging.Config) error {
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	f.stop()
	f.loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func (f *globalFlags) stop() {
	if f.loggingCleanup != nil {
		f.loggingCleanup()
		f.loggingCleanup = nil
	}
}

// Execute runs the root command and prints any error with its code and hint.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), rerrors.FormatForCLI(err))
	}
	return err
}
