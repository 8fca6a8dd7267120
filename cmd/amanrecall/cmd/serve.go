package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrecall/internal/logging"
	"github.com/Aman-CERP/amanrecall/internal/mcp"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol server so AI agents can call the
search and index_stats tools.

stdout carries JSON-RPC only; logs go to ~/.amanrecall/logs/.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio")

	return cmd
}

func runServe(ctx context.Context, flags *globalFlags, transport string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}

	// Nothing but JSON-RPC may reach stdout, and stderr noise shows up as
	// connection errors in most clients.
	if !flags.debug {
		logCfg := logging.ServeConfig(cfg.Logging.Level)
		if cfg.Logging.File != "" {
			logCfg.FilePath = cfg.Logging.File
		}
		if err := flags.useLogging(logCfg); err != nil {
			return err
		}
	}
	logger := slog.Default()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("serve_startup_failed", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown_incomplete", slog.String("error", err.Error()))
		}
	}()

	srv, err := mcp.NewServer(a.engine, a.store, a.embedder, cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	srv.SetLogger(logger)
	srv.SetMetrics(a.metrics)

	logger.Info("serve_ready",
		slog.String("store", cfg.Store.Path),
		slog.String("lexical_backend", cfg.Store.LexicalBackend),
		slog.String("embedder", a.embedder.ModelName()))

	return srv.Serve(ctx, transport)
}
