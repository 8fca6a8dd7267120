// Package telemetry records query patterns locally so retrieval quality can
// be inspected: which signals answered, how often a path degraded, what
// people search for and what returned nothing. Nothing leaves the machine.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryMode names which retrieval paths a caller enabled.
type QueryMode string

const (
	ModeHybrid       QueryMode = "hybrid"
	ModeLexicalOnly  QueryMode = "lexical_only"
	ModeSemanticOnly QueryMode = "semantic_only"
	ModeNone         QueryMode = "none"
)

// ModeFor maps the enabled paths to a QueryMode.
func ModeFor(lexical, semantic bool) QueryMode {
	switch {
	case lexical && semantic:
		return ModeHybrid
	case lexical:
		return ModeLexicalOnly
	case semantic:
		return ModeSemanticOnly
	default:
		return ModeNone
	}
}

// Path names a retrieval path in degraded counts.
type Path string

const (
	PathLexical  Path = "lexical"
	PathSemantic Path = "semantic"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent describes one finished search.
type QueryEvent struct {
	Query       string
	Mode        QueryMode
	ResultCount int
	Latency     time.Duration
	// Degraded lists enabled paths that failed and contributed nothing.
	Degraded  []Path
	Timestamp time.Time
}

// ExtractTerms lowercases query and keeps words of three or more bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	ModeCounts          map[QueryMode]int64     `json:"mode_counts"`
	DegradedCounts      map[Path]int64          `json:"degraded_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of queries that found nothing.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Config tunes a QueryMetrics collector.
type Config struct {
	TopTermsCapacity      int           // default 100
	ZeroResultsCapacity   int           // default 100
	RecentQueriesCapacity int           // default 500
	FlushInterval         time.Duration // 0 disables periodic flushing
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// ZeroResult is a query that found nothing.
type ZeroResult struct {
	Query string
	At    time.Time
}

// Batch holds the counts recorded since the last successful flush.
type Batch struct {
	Date        string // YYYY-MM-DD, set at flush time
	Modes       map[QueryMode]int64
	Latencies   map[LatencyBucket]int64
	Terms       map[string]int64
	ZeroResults []ZeroResult
}

func newBatch() Batch {
	return Batch{
		Modes:     make(map[QueryMode]int64),
		Latencies: make(map[LatencyBucket]int64),
		Terms:     make(map[string]int64),
	}
}

// Empty reports whether b carries no counts.
func (b Batch) Empty() bool {
	return len(b.Modes) == 0 && len(b.Terms) == 0 && len(b.ZeroResults) == 0 && len(b.Latencies) == 0
}

// QueryMetrics aggregates QueryEvents in memory and optionally flushes them
// to a Store. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	modes           map[QueryMode]int64
	degraded        map[Path]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	recentQueries   *lru.Cache[string, struct{}]
	totalQueries    int64
	zeroResultCount int64
	exactRepeats    int64
	startTime       time.Time

	store   Store
	unsaved Batch

	ticker *time.Ticker
	stopCh chan struct{}
	closed bool
}

// NewQueryMetrics creates a collector with DefaultConfig. store may be nil.
func NewQueryMetrics(store Store) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultConfig())
}

// NewQueryMetricsWithConfig creates a collector. Periodic flushing starts
// only when both store and cfg.FlushInterval are set.
func NewQueryMetricsWithConfig(store Store, cfg Config) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		modes:         make(map[QueryMode]int64),
		degraded:      make(map[Path]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		recentQueries: recent,
		startTime:     time.Now(),
		store:         store,
		unsaved:       newBatch(),
		stopCh:        make(chan struct{}),
	}

	if store != nil && cfg.FlushInterval > 0 {
		m.ticker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.ticker.C:
			_ = m.Flush(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// Record adds one query event. Non-blocking apart from the collector lock.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.totalQueries++
	m.modes[event.Mode]++
	m.unsaved.Modes[event.Mode]++

	for _, p := range event.Degraded {
		m.degraded[p]++
	}

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.unsaved.Terms[term]++
	}

	if event.ResultCount == 0 {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
		m.unsaved.ZeroResults = append(m.unsaved.ZeroResults, ZeroResult{Query: event.Query, At: event.Timestamp})
	}

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	m.unsaved.Latencies[bucket]++

	key := hashQuery(event.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.exactRepeats++
	}
	m.recentQueries.Add(key, struct{}{})
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot copies the current aggregates.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	modes := make(map[QueryMode]int64, len(m.modes))
	for k, v := range m.modes {
		modes[k] = v
	}
	degraded := make(map[Path]int64, len(m.degraded))
	for k, v := range m.degraded {
		degraded[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sort.SliceStable(terms, func(i, j int) bool { return terms[i].Count > terms[j].Count })

	return &Snapshot{
		TotalQueries:        m.totalQueries,
		ModeCounts:          modes,
		DegradedCounts:      degraded,
		TopTerms:            terms,
		ZeroResultQueries:   m.zeroResults.Items(),
		ZeroResultCount:     m.zeroResultCount,
		LatencyDistribution: latencies,
		ExactRepeatCount:    m.exactRepeats,
		Since:               m.startTime,
	}
}

// Flush saves the counts recorded since the previous flush in one store
// transaction. On failure they are kept for the next attempt. No-op without
// a store.
func (m *QueryMetrics) Flush(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	batch := m.unsaved
	m.unsaved = newBatch()
	m.mu.Unlock()

	if batch.Empty() {
		return nil
	}
	batch.Date = time.Now().Format("2006-01-02")

	if err := m.store.Save(ctx, batch); err != nil {
		m.mu.Lock()
		m.requeue(batch)
		m.mu.Unlock()
		return err
	}
	return nil
}

// must hold m.mu
func (m *QueryMetrics) requeue(b Batch) {
	for k, v := range b.Modes {
		m.unsaved.Modes[k] += v
	}
	for k, v := range b.Latencies {
		m.unsaved.Latencies[k] += v
	}
	for k, v := range b.Terms {
		m.unsaved.Terms[k] += v
	}
	m.unsaved.ZeroResults = append(b.ZeroResults, m.unsaved.ZeroResults...)
}

// Close stops periodic flushing and flushes once more.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stopCh)
	}
	return m.Flush(context.Background())
}
