package mcp

import "github.com/Aman-CERP/amanrecall/internal/search"

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query    string  `json:"query" jsonschema:"natural-language query or exact phrase"`
	Limit    int     `json:"limit,omitempty" jsonschema:"maximum number of results, default 5, max 50"`
	Lexical  *bool   `json:"lexical,omitempty" jsonschema:"use exact phrase matching, default true"`
	Semantic *bool   `json:"semantic,omitempty" jsonschema:"use embedding similarity, default true"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"drop results with a fused score below this"`
	Explain  bool    `json:"explain,omitempty" jsonschema:"include per-path ranks for each result"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked fragments, best first"`
}

// SearchResultOutput is one ranked fragment.
type SearchResultOutput struct {
	ID        int64   `json:"id" jsonschema:"fragment id, readable as fragment://{id}"`
	FilePath  string  `json:"file_path" jsonschema:"source file of the fragment"`
	StartLine int     `json:"start_line" jsonschema:"first line, 1-based"`
	EndLine   int     `json:"end_line" jsonschema:"last line, inclusive"`
	Content   string  `json:"content" jsonschema:"fragment text"`
	Score     float64 `json:"score" jsonschema:"fused rank score, only meaningful within one query"`

	LexicalRank  int     `json:"lexical_rank,omitempty" jsonschema:"rank in the phrase match list, when explained"`
	SemanticRank int     `json:"semantic_rank,omitempty" jsonschema:"rank in the similarity list, when explained"`
	Similarity   float64 `json:"similarity,omitempty" jsonschema:"cosine similarity to the query, when explained"`
}

// IndexStatsInput defines the input schema for the index_stats tool (no parameters).
type IndexStatsInput struct{}

// IndexStatsOutput defines the output schema for the index_stats tool.
type IndexStatsOutput struct {
	Store      StoreInfo     `json:"store"`
	Cache      CacheInfo     `json:"cache"`
	Embeddings EmbeddingInfo `json:"embeddings"`
	Queries    *QueryInfo    `json:"queries,omitempty"`
}

// StoreInfo summarizes the fragment store.
type StoreInfo struct {
	Fragments         int `json:"fragments"`
	Embedded          int `json:"embedded"`
	MissingEmbeddings int `json:"missing_embeddings"`
	// Dimensions counts embeddings by vector length, keyed by the length.
	Dimensions      map[string]int `json:"dimensions"`
	MixedDimensions bool           `json:"mixed_dimensions"`
	LexicalBackend  string         `json:"lexical_backend"`
}

// CacheInfo describes the in-memory vector snapshot.
type CacheInfo struct {
	Entries     int    `json:"entries"`
	Generation  uint64 `json:"generation"`
	RefreshedAt string `json:"refreshed_at,omitempty"`
	TTLSeconds  int    `json:"ttl_seconds"`
}

// EmbeddingInfo reports the query embedder. AI clients can use Available to
// expect lexical-only results.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
}

// QueryInfo summarizes this session's query telemetry.
type QueryInfo struct {
	Total         int64            `json:"total"`
	Modes         map[string]int64 `json:"modes"`
	Degraded      map[string]int64 `json:"degraded"`
	ZeroResultPct float64          `json:"zero_result_pct"`
}

// toOptions maps tool input to engine options.
func (in SearchInput) toOptions() search.Options {
	return search.Options{
		Limit:       in.Limit,
		UseLexical:  in.Lexical,
		UseSemantic: in.Semantic,
		MinScore:    in.MinScore,
		Explain:     in.Explain,
	}
}

// toResultOutput converts an engine result.
func toResultOutput(r *search.SearchResult) SearchResultOutput {
	out := SearchResultOutput{
		ID:        r.ID,
		FilePath:  r.FilePath,
		StartLine: r.StartLine,
		EndLine:   r.EndLine,
		Content:   r.Content,
		Score:     r.Score,
	}
	if r.Explain != nil {
		out.LexicalRank = r.Explain.LexicalRank
		out.SemanticRank = r.Explain.SemanticRank
		out.Similarity = r.Explain.Similarity
	}
	return out
}
