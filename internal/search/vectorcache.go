package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/amanrecall/internal/store"
)

// Snapshot is an immutable view of every stored embedding.
type Snapshot struct {
	Entries []store.VectorEntry
	// Generation increases with every reload. Zero means never loaded.
	Generation  uint64
	RefreshedAt time.Time
}

// CacheStats describes the vector cache for stats output.
type CacheStats struct {
	Entries     int           `json:"entries"`
	Generation  uint64        `json:"generation"`
	RefreshedAt time.Time     `json:"refreshed_at"`
	TTL         time.Duration `json:"ttl"`
}

// VectorCache keeps all embeddings in memory and reloads them wholesale
// from the store once the snapshot is older than the TTL.
//
// Writes elsewhere never invalidate the cache: a newly embedded fragment
// becomes searchable at the next reload, at most one TTL later. Concurrent
// callers that see a stale snapshot may each reload; the last one wins and
// every reader keeps a consistent snapshot.
type VectorCache struct {
	reader store.EmbeddingReader
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// CacheOption configures a VectorCache.
type CacheOption func(*VectorCache)

// WithTTL sets the snapshot lifetime. d <= 0 keeps DefaultCacheTTL.
func WithTTL(d time.Duration) CacheOption {
	return func(c *VectorCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithCacheClock overrides the time source. nil keeps time.Now.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *VectorCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheLogger sets the logger for reload events.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *VectorCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewVectorCache creates an empty cache over reader. The first read loads it.
func NewVectorCache(reader store.EmbeddingReader, opts ...CacheOption) (*VectorCache, error) {
	if reader == nil {
		return nil, fmt.Errorf("%w: embedding reader is required", ErrNilDependency)
	}
	c := &VectorCache{
		reader: reader,
		ttl:    DefaultCacheTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetAll returns every cached (fragment id, embedding) pair.
func (c *VectorCache) GetAll(ctx context.Context) ([]store.VectorEntry, error) {
	snap, err := c.Snapshot(ctx)
	return snap.Entries, err
}

// Snapshot returns the current snapshot, reloading it first when stale.
// A failed reload leaves the previous snapshot in place for later callers.
func (c *VectorCache) Snapshot(ctx context.Context) (Snapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()

	if snap.Generation > 0 && c.now().Sub(snap.RefreshedAt) < c.ttl {
		return snap, nil
	}

	start := time.Now()
	entries, err := c.reader.AllEmbeddings(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reload vector cache: %w", err)
	}

	c.mu.Lock()
	c.snap = Snapshot{
		Entries:     entries,
		Generation:  c.snap.Generation + 1,
		RefreshedAt: c.now(),
	}
	snap = c.snap
	c.mu.Unlock()

	c.logger.Debug("vector_cache_refreshed",
		slog.Int("entries", len(entries)),
		slog.Uint64("generation", snap.Generation),
		slog.Duration("duration", time.Since(start)))

	return snap, nil
}

// Invalidate marks the snapshot stale so the next read reloads it.
// Operator tooling only; the write path does not call it.
func (c *VectorCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.RefreshedAt = time.Time{}
}

// Stats reports the current snapshot without reloading.
func (c *VectorCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Entries:     len(c.snap.Entries),
		Generation:  c.snap.Generation,
		RefreshedAt: c.snap.RefreshedAt,
		TTL:         c.ttl,
	}
}
