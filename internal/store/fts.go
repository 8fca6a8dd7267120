package store

import (
	"context"
	"fmt"
	"strings"
)

// FTSIndex runs phrase queries against the fragments_fts table of a SQLiteStore.
type FTSIndex struct {
	store *SQLiteStore
}

var _ LexicalIndex = (*FTSIndex)(nil)

// NewFTSIndex returns the in-database full-text index of s.
func NewFTSIndex(s *SQLiteStore) *FTSIndex {
	return &FTSIndex{store: s}
}

// EscapePhrase turns arbitrary text into a single FTS5 phrase: embedded
// double quotes are doubled and the whole string is wrapped in quotes.
func EscapePhrase(text string) string {
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

// Query matches text as a phrase, best bm25 rank first. Parser errors are
// returned wrapped in ErrQuerySyntax.
func (x *FTSIndex) Query(ctx context.Context, text string, limit int) ([]int64, error) {
	if strings.TrimSpace(text) == "" || limit <= 0 {
		return nil, nil
	}

	s := x.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rowid FROM fragments_fts WHERE fragments_fts MATCH ? ORDER BY rank LIMIT ?`,
		EscapePhrase(text), limit)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", ErrQuerySyntax, err)
		}
		return nil, fmt.Errorf("fts query failed: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan fts result: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		if isFTSSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", ErrQuerySyntax, err)
		}
		return nil, err
	}
	return ids, nil
}

// Close is a no-op; the index lives and dies with its store.
func (x *FTSIndex) Close() error {
	return nil
}

// Rebuild regenerates fragments_fts from the fragments table. Needed only
// when rows were written by a tool that bypassed the triggers.
func (x *FTSIndex) Rebuild(ctx context.Context) error {
	s := x.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO fragments_fts(fragments_fts) VALUES ('rebuild')`); err != nil {
		return fmt.Errorf("failed to rebuild fts index: %w", err)
	}
	return nil
}
