package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/amanrecall/internal/config"
	"github.com/Aman-CERP/amanrecall/internal/embed"
	"github.com/Aman-CERP/amanrecall/internal/search"
	"github.com/Aman-CERP/amanrecall/internal/store"
	"github.com/Aman-CERP/amanrecall/internal/telemetry"
)

// app is the wired search stack shared by search, serve and stats.
type app struct {
	cfg       *config.Config
	store     *store.SQLiteStore
	lexical   store.LexicalIndex
	embedder  embed.Embedder
	cache     *search.VectorCache
	engine    *search.Engine
	telemetry *telemetry.SQLiteStore
	metrics   *telemetry.QueryMetrics
	logger    *slog.Logger
}

// loadConfig resolves configuration from --config, or the working
// directory and user config, then applies --db.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		wd, wdErr := os.Getwd()
		if wdErr != nil {
			wd = "."
		}
		cfg, err = config.Load(wd)
	}
	if err != nil {
		return nil, err
	}
	if f.dbPath != "" {
		cfg.Store.Path = f.dbPath
	}
	return cfg, nil
}

// openApp opens the store and builds the engine described by cfg. Query
// telemetry is recorded into the same database and flushed on Close.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &app{cfg: cfg, logger: logger}

	st, err := store.OpenSQLite(cfg.Store.Path,
		store.WithCacheMB(cfg.Store.SQLiteCacheMB),
		store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st

	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg := a.cfg

	lexical, err := store.OpenLexicalIndex(ctx, store.LexicalBackend(cfg.Store.LexicalBackend),
		a.store, cfg.Store.BlevePath, cfg.CacheTTLDuration(), a.logger)
	if err != nil {
		return fmt.Errorf("failed to open lexical index: %w", err)
	}
	a.lexical = lexical

	embedder, err := embed.New(embed.Options{
		Provider:      embed.ProviderType(cfg.Embeddings.Provider),
		Model:         cfg.Embeddings.Model,
		Dimensions:    cfg.Embeddings.Dimensions,
		Timeout:       cfg.EmbedTimeout(),
		OllamaHost:    cfg.Embeddings.OllamaHost,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.Embeddings.OpenAIAPIKey,
		CacheSize:     cfg.Embeddings.CacheSize,
		MaxFailures:   cfg.Embeddings.MaxFailures,
		ResetTimeout:  cfg.BreakerResetTimeout(),
		Logger:        a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	a.embedder = embedder

	a.cache, err = search.NewVectorCache(a.store,
		search.WithTTL(cfg.CacheTTLDuration()),
		search.WithCacheLogger(a.logger))
	if err != nil {
		return fmt.Errorf("failed to create vector cache: %w", err)
	}

	a.telemetry, err = telemetry.NewSQLiteStore(ctx, a.store.DB())
	if err != nil {
		return fmt.Errorf("failed to open query telemetry: %w", err)
	}
	a.metrics = telemetry.NewQueryMetrics(a.telemetry)

	opts := []search.EngineOption{
		search.WithLogger(a.logger),
		search.WithMetrics(a.metrics),
		search.WithRRFConstant(cfg.Search.RRFConstant),
		search.WithCandidateMultiplier(cfg.Search.CandidateMultiplier),
		search.WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
		search.WithTimeout(cfg.SearchTimeout()),
	}
	if cfg.Search.SemanticIndex == config.SemanticHNSW {
		opts = append(opts, search.WithSemanticScanner(search.NewHNSWScanner(search.WithHNSWLogger(a.logger))))
	}

	a.engine, err = search.NewEngine(a.lexical, a.embedder, a.cache, a.store, opts...)
	if err != nil {
		return fmt.Errorf("failed to create search engine: %w", err)
	}
	return nil
}

// Close flushes telemetry and releases everything openApp opened, in
// reverse order.
func (a *app) Close() error {
	var errs []error
	if a.metrics != nil {
		if err := a.metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("flush query telemetry: %w", err))
		}
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.lexical != nil {
		errs = append(errs, a.lexical.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
