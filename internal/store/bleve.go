package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

const bleveBatchSize = 500

// BleveIndex is a lexical index kept outside SQLite. It mirrors the
// fragments table: call Sync after the indexer runs, or open it
// WithRefresh so queries re-sync once the mirror is older than the TTL.
type BleveIndex struct {
	mu       sync.RWMutex
	index    bleve.Index
	path     string
	closed   bool
	syncedAt time.Time
	logger   *slog.Logger

	src        FragmentSource
	ttl        time.Duration
	now        func() time.Time
	refreshing sync.Mutex
}

// BleveOption configures a BleveIndex.
type BleveOption func(*BleveIndex)

// WithRefresh makes Query re-sync from src when the last sync is at least
// ttl old. A zero ttl disables refresh.
func WithRefresh(src FragmentSource, ttl time.Duration) BleveOption {
	return func(b *BleveIndex) {
		b.src = src
		b.ttl = ttl
	}
}

// WithBleveClock replaces time.Now for refresh decisions.
func WithBleveClock(now func() time.Time) BleveOption {
	return func(b *BleveIndex) {
		if now != nil {
			b.now = now
		}
	}
}

var _ LexicalIndex = (*BleveIndex)(nil)

type bleveFragment struct {
	Content    string `json:"content"`
	SourceFile string `json:"source_file"`
}

// NewBleveIndex opens the bleve index at path, creating it if missing.
// An empty path keeps the index in memory.
func NewBleveIndex(path string, logger *slog.Logger, opts ...BleveOption) (*BleveIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(newFragmentMapping())
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, newFragmentMapping())
		} else if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
			// The index is derived data; rebuild rather than fail.
			logger.Warn("bleve_index_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("bleve index corrupted at %s and cannot remove: %w", path, rmErr)
			}
			idx, err = bleve.New(path, newFragmentMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open bleve index: %w", err)
	}

	b := &BleveIndex{index: idx, path: path, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func newFragmentMapping() *mapping.IndexMappingImpl {
	content := bleve.NewTextFieldMapping()
	content.Store = false

	source := bleve.NewKeywordFieldMapping()
	source.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("source_file", source)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Query runs a phrase query over the content field, best score first.
func (b *BleveIndex) Query(ctx context.Context, text string, limit int) ([]int64, error) {
	if strings.TrimSpace(text) == "" || limit <= 0 {
		return nil, nil
	}

	b.refreshIfStale(ctx)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	q := bleve.NewMatchPhraseQuery(text)
	q.SetField("content")

	req := bleve.NewSearchRequest(q)
	req.Size = limit

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			b.logger.Warn("bleve_hit_skipped", slog.String("doc_id", hit.ID))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Sync makes the index mirror src: every fragment is (re)indexed and
// documents whose fragment disappeared are deleted.
func (b *BleveIndex) Sync(ctx context.Context, src FragmentSource) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}

	stale, err := b.allIDs(ctx)
	if err != nil {
		return 0, err
	}

	batch := b.index.NewBatch()
	indexed := 0
	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to execute bleve batch: %w", err)
		}
		batch.Reset()
		return nil
	}

	err = src.ForEachFragment(ctx, func(f *Fragment) error {
		docID := strconv.FormatInt(f.ID, 10)
		delete(stale, docID)
		if err := batch.Index(docID, bleveFragment{Content: f.Content, SourceFile: f.SourceFile}); err != nil {
			return fmt.Errorf("failed to index fragment %d: %w", f.ID, err)
		}
		indexed++
		if batch.Size() >= bleveBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for docID := range stale {
		batch.Delete(docID)
	}
	if err := flush(); err != nil {
		return 0, err
	}
	b.syncedAt = b.now()

	b.logger.Debug("bleve_index_synced",
		slog.Int("indexed", indexed),
		slog.Int("deleted", len(stale)))
	return indexed, nil
}

// refreshIfStale re-syncs from the refresh source once the TTL has passed.
// One caller syncs while concurrent queries read the current documents. A
// failed sync is logged and retried by the next query.
func (b *BleveIndex) refreshIfStale(ctx context.Context) {
	if b.src == nil || b.ttl <= 0 {
		return
	}
	if !b.refreshing.TryLock() {
		return
	}
	defer b.refreshing.Unlock()

	b.mu.RLock()
	due := !b.closed && b.now().Sub(b.syncedAt) >= b.ttl
	b.mu.RUnlock()
	if !due {
		return
	}

	if _, err := b.Sync(ctx, b.src); err != nil && ctx.Err() == nil {
		b.logger.Warn("bleve_refresh_failed", slog.String("error", err.Error()))
	}
}

// must hold b.mu
func (b *BleveIndex) allIDs(ctx context.Context) (map[string]struct{}, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count bleve documents: %w", err)
	}
	ids := make(map[string]struct{}, count)
	if count == 0 {
		return ids, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list bleve documents: %w", err)
	}
	for _, hit := range res.Hits {
		ids[hit.ID] = struct{}{}
	}
	return ids, nil
}

// DocCount returns the number of indexed fragments.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}
	return b.index.DocCount()
}

// Close closes the index. Idempotent.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
