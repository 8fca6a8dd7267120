package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	fragmentURIPrefix  = "fragment://"
	queryMetricsURI    = "amanrecall://query_metrics"
	fragmentURIPattern = fragmentURIPrefix + "{id}"
)

// registerFragmentResource exposes every fragment as fragment://{id}, the
// id returned by the search tool. Location is in the search result; the
// resource carries only the text.
func (s *Server) registerFragmentResource() {
	s.mcp.AddResourceTemplate(
		&mcp.ResourceTemplate{
			Name:        "fragment",
			URITemplate: fragmentURIPattern,
			Description: "The text of a stored fragment, by the id returned from search",
			MIMEType:    "text/plain",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readFragment(ctx, req.Params.URI)
		},
	)
}

// parseFragmentURI extracts the id from fragment://{id}.
func parseFragmentURI(uri string) (int64, bool) {
	rest, ok := strings.CutPrefix(uri, fragmentURIPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) readFragment(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	id, ok := parseFragmentURI(uri)
	if !ok {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid fragment uri: %s", uri))
	}

	frags, err := s.store.GetFragments(ctx, []int64{id})
	if err != nil {
		return nil, MapError(err)
	}
	if len(frags) == 0 {
		return nil, NewResourceNotFoundError(uri)
	}
	f := frags[0]

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: MimeTypeForPath(f.SourceFile),
				Text:     f.Content,
			},
		},
	}, nil
}

// QueryMetricsOutput is the JSON structure for the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary `json:"summary"`
	ModeCounts          map[string]int64    `json:"mode_counts"`
	DegradedCounts      map[string]int64    `json:"degraded_counts"`
	TopTerms            []QueryTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// QueryMetricsSummary provides overview statistics.
type QueryMetricsSummary struct {
	TotalQueries     int64   `json:"total_queries"`
	TimePeriod       string  `json:"time_period"`
	ZeroResultPct    float64 `json:"zero_result_pct"`
	ExactRepeatCount int64   `json:"exact_repeat_count"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         queryMetricsURI,
			Description: "Query pattern telemetry for this session",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readQueryMetrics(ctx)
		},
	)
}

func (s *Server) readQueryMetrics(_ context.Context) (*mcp.ReadResourceResult, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()

	if metrics == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}

	snapshot := metrics.Snapshot()
	output := QueryMetricsOutput{
		Summary: QueryMetricsSummary{
			TotalQueries:     snapshot.TotalQueries,
			TimePeriod:       "session",
			ZeroResultPct:    snapshot.ZeroResultPercentage(),
			ExactRepeatCount: snapshot.ExactRepeatCount,
		},
		ModeCounts:          make(map[string]int64, len(snapshot.ModeCounts)),
		DegradedCounts:      make(map[string]int64, len(snapshot.DegradedCounts)),
		TopTerms:            make([]QueryTermCount, 0, len(snapshot.TopTerms)),
		ZeroResultQueries:   snapshot.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snapshot.LatencyDistribution)),
	}
	for m, n := range snapshot.ModeCounts {
		output.ModeCounts[string(m)] = n
	}
	for p, n := range snapshot.DegradedCounts {
		output.DegradedCounts[string(p)] = n
	}
	for _, tc := range snapshot.TopTerms {
		output.TopTerms = append(output.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
	}
	for b, n := range snapshot.LatencyDistribution {
		output.LatencyDistribution[string(b)] = n
	}

	content, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      queryMetricsURI,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}
