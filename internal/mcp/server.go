package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanrecall/internal/config"
	"github.com/Aman-CERP/amanrecall/internal/embed"
	"github.com/Aman-CERP/amanrecall/internal/search"
	"github.com/Aman-CERP/amanrecall/internal/store"
	"github.com/Aman-CERP/amanrecall/internal/telemetry"
	"github.com/Aman-CERP/amanrecall/pkg/version"
)

// Engine is the search surface exposed to clients.
type Engine interface {
	search.Searcher
	CacheStats() search.CacheStats
}

// Store is the read side of the fragment store: batch lookups for the
// fragment resource and counts for index_stats.
type Store interface {
	store.FragmentReader
	Stats(ctx context.Context) (*store.Stats, error)
}

// Server is the MCP server for amanrecall. It bridges AI clients with the
// hybrid searcher.
type Server struct {
	mcp      *mcp.Server
	engine   Engine
	store    Store
	embedder embed.Embedder // may be nil; reported as unavailable
	config   *config.Config
	logger   *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics           *telemetry.QueryMetrics
	metricsRegistered bool

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

const (
	toolSearch     = "search"
	toolIndexStats = "index_stats"
)

var toolInfos = []ToolInfo{
	{
		Name: toolSearch,
		Description: "Search the personal knowledge corpus. Combines exact phrase matching with semantic similarity " +
			"and returns the best fragments with their source file and line range. Works with quotes and " +
			"punctuation; if the embedding backend is down, phrase matches are still returned.",
	},
	{
		Name:        toolIndexStats,
		Description: "Report fragment and embedding counts, vector cache freshness and whether the embedding backend is reachable.",
	},
}

// NewServer creates a new MCP server.
func NewServer(engine Engine, st Store, embedder embed.Embedder, cfg *config.Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if st == nil {
		return nil, errors.New("fragment store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine:   engine,
		store:    st,
		embedder: embedder,
		config:   cfg,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    version.Name,
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.registerFragmentResource()

	return s, nil
}

// SetLogger replaces the server logger.
func (s *Server) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = l
}

// SetMetrics sets the query metrics collector. When set, index_stats
// includes session query counts and the query_metrics resource is
// registered; later calls only swap the collector.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil && !s.metricsRegistered {
		s.registerQueryMetricsResource()
		s.metricsRegistered = true
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return version.Name, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolInfos))
	copy(out, toolInfos)
	return out
}

func (s *Server) registerTools() {
	for _, t := range toolInfos {
		tool := &mcp.Tool{Name: t.Name, Description: t.Description}
		switch t.Name {
		case toolSearch:
			mcp.AddTool(s.mcp, tool, s.mcpSearchHandler)
		case toolIndexStats:
			mcp.AddTool(s.mcp, tool, s.mcpIndexStatsHandler)
		}
		s.logger.Debug("tool_registered", slog.String("name", t.Name))
	}
}

// mcpSearchHandler is the MCP SDK handler for the search tool. The text
// content is markdown; the structured output carries the same results.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required and must not be blank")
	}
	if input.Limit < 0 {
		return nil, SearchOutput{}, NewInvalidParamsError("limit must not be negative")
	}
	if input.MinScore < 0 {
		return nil, SearchOutput{}, NewInvalidParamsError("min_score must not be negative")
	}

	start := time.Now()
	requestID := generateRequestID()
	logger := s.log()

	results, err := s.engine.Search(ctx, query, input.toOptions())
	if err != nil {
		logger.Error("search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(results)))

	output := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		if r != nil {
			output.Results = append(output.Results, toResultOutput(r))
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(query, results)}},
	}, output, nil
}

// mcpIndexStatsHandler is the MCP SDK handler for the index_stats tool.
func (s *Server) mcpIndexStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatsInput) (
	*mcp.CallToolResult,
	*IndexStatsOutput,
	error,
) {
	output, err := s.indexStats(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, output, nil
}

func (s *Server) indexStats(ctx context.Context) (*IndexStatsOutput, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("read store stats: %w", err)
	}

	cache := s.engine.CacheStats()
	out := &IndexStatsOutput{
		Store: StoreInfo{
			Fragments:         stats.Fragments,
			Embedded:          stats.Embedded,
			MissingEmbeddings: stats.Fragments - stats.Embedded,
			Dimensions:        make(map[string]int, len(stats.Dimensions)),
			MixedDimensions:   len(stats.Dimensions) > 1,
			LexicalBackend:    s.config.Store.LexicalBackend,
		},
		Cache: CacheInfo{
			Entries:    cache.Entries,
			Generation: cache.Generation,
			TTLSeconds: int(cache.TTL / time.Second),
		},
		Embeddings: EmbeddingInfo{
			Provider: s.config.Embeddings.Provider,
			Model:    "none",
		},
	}
	for dims, n := range stats.Dimensions {
		out.Store.Dimensions[strconv.Itoa(dims)] = n
	}
	if !cache.RefreshedAt.IsZero() {
		out.Cache.RefreshedAt = cache.RefreshedAt.UTC().Format(time.RFC3339)
	}
	if s.embedder != nil {
		out.Embeddings.Model = s.embedder.ModelName()
		out.Embeddings.Dimensions = s.embedder.Dimensions()
		out.Embeddings.Available = s.embedder.Available(ctx)
	}

	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()
	if metrics != nil {
		snap := metrics.Snapshot()
		q := &QueryInfo{
			Total:         snap.TotalQueries,
			Modes:         make(map[string]int64, len(snap.ModeCounts)),
			Degraded:      make(map[string]int64, len(snap.DegradedCounts)),
			ZeroResultPct: snap.ZeroResultPercentage(),
		}
		for m, n := range snap.ModeCounts {
			q.Modes[string(m)] = n
		}
		for p, n := range snap.DegradedCounts {
			q.Degraded[string(p)] = n
		}
		out.Queries = q
	}

	return out, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	logger := s.log()
	logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func (s *Server) log() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	return uuid.NewString()[:8]
}
