// Package search ranks fragments for a natural-language query. It runs a
// full-text phrase query and an embedding similarity scan concurrently and
// merges the two rankings with Reciprocal Rank Fusion (RRF).
package search

import (
	"context"
	"time"
)

const (
	// DefaultLimit is the number of results when Options.Limit is unset.
	DefaultLimit = 5

	// DefaultMaxLimit caps Options.Limit.
	DefaultMaxLimit = 50

	// DefaultCandidateMultiplier sets how many candidates each path returns
	// per requested result before fusion.
	DefaultCandidateMultiplier = 2

	// DefaultCacheTTL bounds vector cache staleness.
	DefaultCacheTTL = 60 * time.Second
)

// Searcher is the query surface used by the MCP server and the CLI.
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) ([]*SearchResult, error)
}

// Options configures one search call.
type Options struct {
	// Limit is the maximum number of results (default 5).
	Limit int

	// UseLexical and UseSemantic enable the retrieval paths. nil means enabled.
	UseLexical  *bool
	UseSemantic *bool

	// MinScore drops fused results scoring below it. 0 keeps everything.
	MinScore float64

	// Explain attaches per-path ranks to each result.
	Explain bool
}

// Bool returns a pointer to v, for Options.UseLexical and UseSemantic.
func Bool(v bool) *bool {
	return &v
}

func (o Options) lexicalEnabled() bool  { return o.UseLexical == nil || *o.UseLexical }
func (o Options) semanticEnabled() bool { return o.UseSemantic == nil || *o.UseSemantic }

// SearchResult is one ranked fragment.
type SearchResult struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`

	// Score is the fused RRF score. It orders results within one query and
	// means nothing across queries.
	Score float64 `json:"score"`

	Explain *Explanation `json:"explain,omitempty"`
}

// Explanation shows where a result came from.
type Explanation struct {
	// LexicalRank and SemanticRank are 1-based, 0 when absent from that list.
	LexicalRank  int `json:"lexical_rank"`
	SemanticRank int `json:"semantic_rank"`
	// Similarity is the cosine similarity to the query, 0 when the
	// semantic path did not rank this fragment.
	Similarity float64 `json:"similarity"`
}
