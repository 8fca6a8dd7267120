package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LexicalBackend names a LexicalIndex implementation.
type LexicalBackend string

const (
	// BackendFTS5 queries the fragments_fts table inside the store (default).
	BackendFTS5 LexicalBackend = "fts5"
	// BackendBleve queries a bleve index synced from the store on open and
	// re-synced once per refresh interval.
	BackendBleve LexicalBackend = "bleve"
)

// OpenLexicalIndex returns the lexical index for backend over s. The bleve
// backend is synced from s before it is returned and again whenever a query
// finds the last sync at least refresh old; blevePath may be empty for an
// in-memory index.
func OpenLexicalIndex(ctx context.Context, backend LexicalBackend, s *SQLiteStore, blevePath string,
	refresh time.Duration, logger *slog.Logger) (LexicalIndex, error) {
	switch backend {
	case BackendFTS5, "":
		return NewFTSIndex(s), nil

	case BackendBleve:
		idx, err := NewBleveIndex(blevePath, logger, WithRefresh(s, refresh))
		if err != nil {
			return nil, err
		}
		if _, err := idx.Sync(ctx, s); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to sync bleve index: %w", err)
		}
		return idx, nil

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: fts5, bleve)", backend)
	}
}
