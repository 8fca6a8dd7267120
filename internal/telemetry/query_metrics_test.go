package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	for _, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		buf.Add(q)
	}

	assert.Equal(t, []string{"q3", "q4", "q5"}, buf.Items())
	assert.Equal(t, 3, buf.Size())
}

func TestCircularBuffer_EmptyItems(t *testing.T) {
	buf := NewCircularBuffer[int](0)

	assert.Empty(t, buf.Items())
	assert.NotNil(t, buf.Items())
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, ModeHybrid, ModeFor(true, true))
	assert.Equal(t, ModeLexicalOnly, ModeFor(true, false))
	assert.Equal(t, ModeSemanticOnly, ModeFor(false, true))
	assert.Equal(t, ModeNone, ModeFor(false, false))
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"how", "prune", "tomatoes"}, ExtractTerms("  How do I prune TOMATOES "))
	assert.Nil(t, ExtractTerms("a of"))
}

func TestQueryMetrics_Record(t *testing.T) {
	// Given: an in-memory collector
	m := NewQueryMetrics(nil)
	defer m.Close()

	// When: recording a mix of queries
	m.Record(QueryEvent{Query: "sourdough starter", Mode: ModeHybrid, ResultCount: 3, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "sourdough hydration", Mode: ModeHybrid, ResultCount: 0, Latency: 20 * time.Millisecond,
		Degraded: []Path{PathSemantic}})
	m.Record(QueryEvent{Query: "Sourdough Starter", Mode: ModeLexicalOnly, ResultCount: 1, Latency: time.Millisecond})

	// Then: aggregates reflect every event
	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.ModeCounts[ModeHybrid])
	assert.Equal(t, int64(1), snap.ModeCounts[ModeLexicalOnly])
	assert.Equal(t, int64(1), snap.DegradedCounts[PathSemantic])
	assert.Equal(t, []string{"sourdough hydration"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, int64(2), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "sourdough", Count: 3}, snap.TopTerms[0])
	assert.InDelta(t, 33.33, snap.ZeroResultPercentage(), 0.01)
}

func TestQueryMetrics_RecordAfterCloseIgnored(t *testing.T) {
	m := NewQueryMetrics(nil)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Query: "late", Mode: ModeHybrid})

	assert.Zero(t, m.Snapshot().TotalQueries)
}

func TestQueryMetrics_ConcurrentRecord(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Record(QueryEvent{Query: "garden notes", Mode: ModeHybrid, ResultCount: 1})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), m.Snapshot().TotalQueries)
}

// recordingStore captures saved batches and can fail on demand.
type recordingStore struct {
	mu      sync.Mutex
	batches []Batch
	fail    error
}

func (s *recordingStore) Save(_ context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.batches = append(s.batches, b)
	return nil
}

func (s *recordingStore) ModeCounts(context.Context, string, string) (map[QueryMode]int64, error) {
	return nil, nil
}
func (s *recordingStore) TopTerms(context.Context, int) ([]TermCount, error) { return nil, nil }
func (s *recordingStore) ZeroResultQueries(context.Context, int) ([]string, error) {
	return nil, nil
}
func (s *recordingStore) LatencyCounts(context.Context, string, string) (map[LatencyBucket]int64, error) {
	return nil, nil
}

func TestQueryMetrics_FlushSendsDeltas(t *testing.T) {
	// Given: a collector with a store and no periodic flushing
	st := &recordingStore{}
	m := NewQueryMetricsWithConfig(st, Config{})
	ctx := context.Background()

	// When: flushing twice with one event in between each
	m.Record(QueryEvent{Query: "compost ratio", Mode: ModeHybrid, ResultCount: 0})
	require.NoError(t, m.Flush(ctx))
	require.NoError(t, m.Flush(ctx))
	m.Record(QueryEvent{Query: "compost bin", Mode: ModeSemanticOnly, ResultCount: 2})
	require.NoError(t, m.Flush(ctx))

	// Then: each batch carries only what was new, empty flushes are skipped
	require.Len(t, st.batches, 2)
	assert.Equal(t, int64(1), st.batches[0].Modes[ModeHybrid])
	assert.Len(t, st.batches[0].ZeroResults, 1)
	assert.NotEmpty(t, st.batches[0].Date)
	assert.Equal(t, int64(1), st.batches[1].Modes[ModeSemanticOnly])
	assert.Zero(t, st.batches[1].Modes[ModeHybrid])
	assert.Equal(t, int64(1), st.batches[1].Terms["compost"])
}

func TestQueryMetrics_FailedFlushRequeues(t *testing.T) {
	st := &recordingStore{fail: errors.New("disk full")}
	m := NewQueryMetricsWithConfig(st, Config{})
	ctx := context.Background()

	m.Record(QueryEvent{Query: "mulch", Mode: ModeHybrid, ResultCount: 1})
	require.Error(t, m.Flush(ctx))

	st.fail = nil
	m.Record(QueryEvent{Query: "mulch depth", Mode: ModeHybrid, ResultCount: 1})
	require.NoError(t, m.Flush(ctx))

	require.Len(t, st.batches, 1)
	assert.Equal(t, int64(2), st.batches[0].Modes[ModeHybrid])
	assert.Equal(t, int64(2), st.batches[0].Terms["mulch"])
}

func TestQueryMetrics_CloseFlushes(t *testing.T) {
	st := &recordingStore{}
	m := NewQueryMetricsWithConfig(st, Config{FlushInterval: time.Hour})

	m.Record(QueryEvent{Query: "seed catalog", Mode: ModeHybrid, ResultCount: 4})
	require.NoError(t, m.Close())

	require.Len(t, st.batches, 1)
}
