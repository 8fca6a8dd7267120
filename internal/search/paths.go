package search

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Aman-CERP/amanrecall/internal/store"
)

// pathResult is what one retrieval path hands to the fuser.
type pathResult struct {
	ids []int64
	// similarity is set by the semantic path only.
	similarity map[int64]float64
	failed     bool
}

// pathContext applies the engine timeout to one path. Its expiry only
// ends that path; ctx itself is left untouched.
func (e *Engine) pathContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// lexicalPath runs the phrase query. Any index error or timeout degrades
// the path to an empty list; the caller still gets a semantic-only ranking.
func (e *Engine) lexicalPath(ctx context.Context, query string, n int) pathResult {
	pctx, cancel := e.pathContext(ctx)
	defer cancel()

	ids, err := e.lexical.Query(pctx, query, n)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("lexical_query_failed",
				slog.String("query", query),
				slog.Bool("syntax", errors.Is(err, store.ErrQuerySyntax)),
				slog.String("error", err.Error()))
		}
		return pathResult{failed: true}
	}
	if len(ids) > n {
		ids = ids[:n]
	}
	return pathResult{ids: ids}
}

// semanticPath embeds the query and scans the vector cache. An embedding
// failure means the vector is absent: the path returns nothing and the
// cache is not touched.
func (e *Engine) semanticPath(ctx context.Context, query string, n int) pathResult {
	pctx, cancel := e.pathContext(ctx)
	defer cancel()

	vec, err := e.embedder.Embed(pctx, query)
	if err != nil || len(vec) == 0 {
		if err != nil && ctx.Err() == nil {
			e.logger.Warn("embedding_unavailable",
				slog.String("model", e.embedder.ModelName()),
				slog.String("error", err.Error()))
		}
		return pathResult{failed: true}
	}

	snap, err := e.cache.Snapshot(pctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("vector_cache_unavailable", slog.String("error", err.Error()))
		}
		return pathResult{failed: true}
	}

	scored, err := e.scanner.Scan(pctx, vec, snap, n)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("semantic_scan_failed", slog.String("error", err.Error()))
		}
		return pathResult{failed: true}
	}

	res := pathResult{
		ids:        make([]int64, len(scored)),
		similarity: make(map[int64]float64, len(scored)),
	}
	for i, s := range scored {
		res.ids[i] = s.ID
		res.similarity[s.ID] = s.Similarity
	}
	return res
}
