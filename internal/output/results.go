package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/amanrecall/internal/search"
	"github.com/Aman-CERP/amanrecall/internal/store"
	"github.com/Aman-CERP/amanrecall/internal/telemetry"
)

// Format selects how results are printed.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (supported: text, json)", s)
	}
}

// MaxPreviewLines bounds how much of each fragment is printed in text mode.
const MaxPreviewLines = 8

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Results prints ranked fragments, best first.
func (w *Writer) Results(query string, results []*search.SearchResult) {
	if len(results) == 0 {
		w.Status("🔍", fmt.Sprintf("No results found for %q", query))
		return
	}

	noun := "results"
	if len(results) == 1 {
		noun = "result"
	}
	w.Header(fmt.Sprintf("%d %s for %q", len(results), noun, query))
	w.Newline()

	for i, r := range results {
		loc := fmt.Sprintf("%s:%d-%d", r.FilePath, r.StartLine, r.EndLine)
		_, _ = fmt.Fprintf(w.out, "%2d. %s  %s\n",
			i+1, w.styles.Path.Render(loc), w.styles.Score.Render(fmt.Sprintf("%.4f", r.Score)))
		if r.Explain != nil {
			_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Dim.Render(describeExplanation(r.Explain)))
		}
		for _, line := range preview(r.Content, MaxPreviewLines) {
			_, _ = fmt.Fprintf(w.out, "    %s\n", line)
		}
		w.Newline()
	}
}

func describeExplanation(e *search.Explanation) string {
	parts := make([]string, 0, 3)
	if e.LexicalRank > 0 {
		parts = append(parts, fmt.Sprintf("lexical #%d", e.LexicalRank))
	}
	if e.SemanticRank > 0 {
		parts = append(parts, fmt.Sprintf("semantic #%d (similarity %.3f)", e.SemanticRank, e.Similarity))
	}
	if len(parts) == 0 {
		return "no path"
	}
	return strings.Join(parts, ", ")
}

// preview returns at most n lines of content, marking truncation.
func preview(content string, n int) []string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) <= n {
		return lines
	}
	out := append([]string{}, lines[:n]...)
	return append(out, fmt.Sprintf("… (%d more lines)", len(lines)-n))
}

// IndexStats prints store and cache statistics.
func (w *Writer) IndexStats(stats *store.Stats, cache search.CacheStats, embedder string, available bool) {
	w.Header("Index")
	w.Field("fragments", stats.Fragments)
	w.Field("embedded", stats.Embedded)
	w.Field("missing embeddings", stats.Fragments-stats.Embedded)
	if len(stats.Dimensions) > 0 {
		w.Field("dimensions", formatDimensions(stats.Dimensions))
	}
	if stats.Malformed > 0 {
		w.Field("malformed embeddings", stats.Malformed)
	}
	w.Newline()

	w.Header("Vector cache")
	w.Field("entries", cache.Entries)
	w.Field("generation", cache.Generation)
	w.Field("ttl", cache.TTL)
	if cache.RefreshedAt.IsZero() {
		w.Field("refreshed", "never")
	} else {
		w.Field("refreshed", cache.RefreshedAt.Format(time.RFC3339))
	}
	w.Newline()

	w.Header("Embedder")
	status := "available"
	if !available {
		status = "unavailable (searches fall back to lexical only)"
	}
	w.Field(embedder, status)

	if len(stats.Dimensions) > 1 {
		w.Newline()
		w.Warning("Embeddings have mixed dimensions; vectors from other models are skipped.")
	}
}

// QueryHistory prints persisted query telemetry.
func (w *Writer) QueryHistory(modes map[telemetry.QueryMode]int64, terms []telemetry.TermCount, zero []string) {
	w.Header("Queries")
	if len(modes) == 0 {
		w.Field("recorded", 0)
		return
	}
	keys := make([]string, 0, len(modes))
	for m := range modes {
		keys = append(keys, string(m))
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.Field(k, modes[telemetry.QueryMode(k)])
	}
	if len(terms) > 0 {
		top := make([]string, len(terms))
		for i, t := range terms {
			top[i] = fmt.Sprintf("%s (%d)", t.Term, t.Count)
		}
		w.Field("top terms", strings.Join(top, ", "))
	}
	if len(zero) > 0 {
		w.Field("recent zero-result queries", strings.Join(zero, " | "))
	}
}

func formatDimensions(dims map[int]int) string {
	keys := make([]int, 0, len(dims))
	for d := range dims {
		keys = append(keys, d)
	}
	sort.Ints(keys)
	parts := make([]string, len(keys))
	for i, d := range keys {
		parts[i] = fmt.Sprintf("%d×%d", dims[d], d)
	}
	return strings.Join(parts, ", ")
}
