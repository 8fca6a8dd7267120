package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrecall/internal/output"
	"github.com/Aman-CERP/amanrecall/internal/search"
)

type searchOptions struct {
	limit        int
	lexicalOnly  bool
	semanticOnly bool
	format       string
	explain      bool
	minScore     float64
}

func newSearchCmd(flags *globalFlags) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge store",
		Long: `Search stored fragments by exact phrase and by meaning.

Both rankings are fused with Reciprocal Rank Fusion. Quotes and
punctuation in the query are matched literally.

Examples:
  amanrecall search "water the tomatoes"
  amanrecall search -n 10 --explain retry backoff
  amanrecall search --lexical-only "ERR_302"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, flags, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().BoolVar(&opts.lexicalOnly, "lexical-only", false, "Use exact phrase matching only")
	cmd.Flags().BoolVar(&opts.semanticOnly, "semantic-only", false, "Use embedding similarity only")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show per-path ranks for each result")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Drop results with a fused score below this")
	cmd.MarkFlagsMutuallyExclusive("lexical-only", "semantic-only")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, flags *globalFlags, query string, opts *searchOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return errors.New("query must not be blank")
	}
	if opts.limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", opts.limit)
	}
	if opts.minScore < 0 {
		return fmt.Errorf("min-score must not be negative, got %g", opts.minScore)
	}
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
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

	searchOpts := search.Options{
		Limit:    opts.limit,
		MinScore: opts.minScore,
		Explain:  opts.explain,
	}
	if opts.lexicalOnly {
		searchOpts.UseSemantic = search.Bool(false)
	}
	if opts.semanticOnly {
		searchOpts.UseLexical = search.Bool(false)
	}

	results, err := a.engine.Search(ctx, query, searchOpts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := output.New(cmd.OutOrStdout())
	if format == output.FormatJSON {
		if results == nil {
			results = []*search.SearchResult{}
		}
		return out.JSON(results)
	}
	out.Results(query, results)
	return nil
}
