package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanrecall/internal/embed"
	rerrors "github.com/Aman-CERP/amanrecall/internal/errors"
	"github.com/Aman-CERP/amanrecall/internal/store"
	"github.com/Aman-CERP/amanrecall/internal/telemetry"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine is the hybrid searcher. Build it once at startup and share it;
// apart from the vector cache it holds no per-query state.
type Engine struct {
	lexical  store.LexicalIndex
	embedder embed.Embedder
	cache    *VectorCache
	scanner  SemanticScanner
	fuser    *RankFuser
	hydrator *Hydrator
	metrics  *telemetry.QueryMetrics
	logger   *slog.Logger

	defaultLimit int
	maxLimit     int
	multiplier   int
	timeout      time.Duration
}

var _ Searcher = (*Engine)(nil)

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records every search in m.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRRFConstant sets the fusion constant k.
func WithRRFConstant(k int) EngineOption {
	return func(e *Engine) {
		e.fuser = NewRankFuser(k)
	}
}

// WithCandidateMultiplier sets how many candidates each path fetches per
// requested result.
func WithCandidateMultiplier(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.multiplier = n
		}
	}
}

// WithLimits sets the default and maximum result counts.
func WithLimits(defaultLimit, maxLimit int) EngineOption {
	return func(e *Engine) {
		if defaultLimit > 0 {
			e.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			e.maxLimit = maxLimit
		}
	}
}

// WithSemanticScanner replaces the linear scan, e.g. with an HNSWScanner.
func WithSemanticScanner(s SemanticScanner) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.scanner = s
		}
	}
}

// WithTimeout bounds each retrieval path. A path that runs out of time
// contributes nothing; the search still returns the other path's results.
// 0 leaves only the caller's deadline.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// NewEngine creates a hybrid searcher. All dependencies are required.
func NewEngine(
	lexical store.LexicalIndex,
	embedder embed.Embedder,
	cache *VectorCache,
	fragments store.FragmentReader,
	opts ...EngineOption,
) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if cache == nil {
		return nil, fmt.Errorf("%w: vector cache is required", ErrNilDependency)
	}
	if fragments == nil {
		return nil, fmt.Errorf("%w: fragment reader is required", ErrNilDependency)
	}

	e := &Engine{
		lexical:      lexical,
		embedder:     embedder,
		cache:        cache,
		scanner:      LinearScanner{},
		fuser:        NewRankFuser(DefaultRRFConstant),
		hydrator:     NewHydrator(fragments),
		logger:       slog.Default(),
		defaultLimit: DefaultLimit,
		maxLimit:     DefaultMaxLimit,
		multiplier:   DefaultCandidateMultiplier,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultLimit > e.maxLimit {
		e.defaultLimit = e.maxLimit
	}
	return e, nil
}

// Search runs the enabled retrieval paths concurrently, fuses their
// rankings, truncates to the limit and loads the winning fragments.
//
// A failing or timed-out path contributes an empty list; no match at all
// is an empty result, not an error. Only a failure to load the ranked
// fragments, or cancellation of ctx, is returned as an error.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*SearchResult, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return []*SearchResult{}, nil
	}

	limit := e.clampLimit(opts.Limit)
	candidates := limit * e.multiplier
	useLexical, useSemantic := opts.lexicalEnabled(), opts.semanticEnabled()

	var lex, sem pathResult
	g, gctx := errgroup.WithContext(ctx)
	if useLexical {
		g.Go(func() error {
			lex = e.lexicalPath(gctx, query, candidates)
			return nil
		})
	}
	if useSemantic {
		g.Go(func() error {
			sem = e.semanticPath(gctx, query, candidates)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search cancelled: %w", err)
	}

	fused := e.fuser.Merge(lex.ids, sem.ids, limit)
	if opts.MinScore > 0 {
		fused = aboveScore(fused, opts.MinScore)
	}

	results, err := e.hydrator.Resolve(ctx, fused)
	if err != nil {
		return nil, rerrors.New(rerrors.ErrCodeSearchFailed, "failed to load ranked fragments", err)
	}

	if opts.Explain {
		explain(results, fused, sem.similarity)
	}

	var degraded []telemetry.Path
	if lex.failed {
		degraded = append(degraded, telemetry.PathLexical)
	}
	if sem.failed {
		degraded = append(degraded, telemetry.PathSemantic)
	}

	e.logger.Debug("search_complete",
		slog.String("query", query),
		slog.Int("lexical", len(lex.ids)),
		slog.Int("semantic", len(sem.ids)),
		slog.Int("results", len(results)),
		slog.Int("limit", limit),
		slog.Duration("duration", time.Since(start)))

	e.recordMetrics(telemetry.QueryEvent{
		Query:       query,
		Mode:        telemetry.ModeFor(useLexical, useSemantic),
		ResultCount: len(results),
		Latency:     time.Since(start),
		Degraded:    degraded,
	})

	return results, nil
}

// clampLimit applies the default and the maximum.
func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		limit = e.defaultLimit
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}
	return limit
}

// CacheStats reports the vector cache state.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

func (e *Engine) recordMetrics(event telemetry.QueryEvent) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(event)
}

func aboveScore(fused []Fused, minScore float64) []Fused {
	kept := fused[:0:0]
	for _, f := range fused {
		if f.Score >= minScore {
			kept = append(kept, f)
		}
	}
	return kept
}

func explain(results []*SearchResult, fused []Fused, similarity map[int64]float64) {
	byID := make(map[int64]Fused, len(fused))
	for _, f := range fused {
		byID[f.ID] = f
	}
	for _, r := range results {
		f := byID[r.ID]
		r.Explain = &Explanation{
			LexicalRank:  f.LexicalRank,
			SemanticRank: f.SemanticRank,
			Similarity:   similarity[r.ID],
		}
	}
}
