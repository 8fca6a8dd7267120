package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrecall/internal/output"
	"github.com/Aman-CERP/amanrecall/internal/search"
	"github.com/Aman-CERP/amanrecall/internal/store"
	"github.com/Aman-CERP/amanrecall/internal/telemetry"
)

const statsTopTerms = 10

func newStatsCmd(flags *globalFlags) *cobra.Command {
	var refresh bool
	var jsonOutput bool
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store, cache and query statistics",
		Long: `Display fragment and embedding counts, the embedding dimension
histogram, vector cache state, embedder health and recorded query patterns.

With --refresh the vector cache is loaded first, so entries and
generation reflect the current database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, flags, refresh, jsonOutput, days)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Load the vector cache before reporting")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days of query history to include")

	return cmd
}

// StatsOutput is the JSON output of the stats command.
type StatsOutput struct {
	Store    *store.Stats       `json:"store"`
	Cache    search.CacheStats  `json:"cache"`
	Embedder StatsEmbedder      `json:"embedder"`
	Queries  StatsQueriesOutput `json:"queries"`
}

// StatsEmbedder reports the query embedder.
type StatsEmbedder struct {
	Model     string `json:"model"`
	Available bool   `json:"available"`
}

// StatsQueriesOutput is the persisted query history.
type StatsQueriesOutput struct {
	Modes             map[telemetry.QueryMode]int64 `json:"modes"`
	TopTerms          []telemetry.TermCount         `json:"top_terms"`
	ZeroResultQueries []string                      `json:"zero_result_queries"`
}

func runStats(ctx context.Context, cmd *cobra.Command, flags *globalFlags, refresh, jsonOutput bool, days int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if days <= 0 {
		return fmt.Errorf("days must be positive, got %d", days)
	}

	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store stats: %w", err)
	}
	if refresh {
		if _, err := a.cache.Snapshot(ctx); err != nil {
			return fmt.Errorf("failed to load vector cache: %w", err)
		}
	}

	history, err := queryHistory(ctx, a.telemetry, days, time.Now())
	if err != nil {
		return fmt.Errorf("failed to get query stats: %w", err)
	}

	result := StatsOutput{
		Store: stats,
		Cache: a.engine.CacheStats(),
		Embedder: StatsEmbedder{
			Model:     a.embedder.ModelName(),
			Available: a.embedder.Available(ctx),
		},
		Queries: *history,
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(result)
	}
	out.IndexStats(result.Store, result.Cache, result.Embedder.Model, result.Embedder.Available)
	out.Newline()
	out.QueryHistory(history.Modes, history.TopTerms, history.ZeroResultQueries)
	return nil
}

func queryHistory(ctx context.Context, ts telemetry.Store, days int, now time.Time) (*StatsQueriesOutput, error) {
	const dateLayout = "2006-01-02"
	from := now.AddDate(0, 0, -(days - 1)).Format(dateLayout)
	to := now.Format(dateLayout)

	modes, err := ts.ModeCounts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	terms, err := ts.TopTerms(ctx, statsTopTerms)
	if err != nil {
		return nil, err
	}
	zero, err := ts.ZeroResultQueries(ctx, statsTopTerms)
	if err != nil {
		return nil, err
	}
	return &StatsQueriesOutput{Modes: modes, TopTerms: terms, ZeroResultQueries: zero}, nil
}
