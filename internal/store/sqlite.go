package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver, registers "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS fragments (
	id          INTEGER PRIMARY KEY,
	content     TEXT    NOT NULL,
	source_file TEXT    NOT NULL,
	start_line  INTEGER NOT NULL,
	end_line    INTEGER NOT NULL,
	embedding   BLOB
);

CREATE INDEX IF NOT EXISTS idx_fragments_source ON fragments(source_file);

-- External-content FTS5 table; the triggers below keep it in step with fragments.
CREATE VIRTUAL TABLE IF NOT EXISTS fragments_fts USING fts5(
	content,
	content='fragments',
	content_rowid='id',
	tokenize='unicode61'
);

CREATE TRIGGER IF NOT EXISTS fragments_ai AFTER INSERT ON fragments BEGIN
	INSERT INTO fragments_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS fragments_ad AFTER DELETE ON fragments BEGIN
	INSERT INTO fragments_fts(fragments_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;

CREATE TRIGGER IF NOT EXISTS fragments_au AFTER UPDATE OF content ON fragments BEGIN
	INSERT INTO fragments_fts(fragments_fts, rowid, content) VALUES ('delete', old.id, old.content);
	INSERT INTO fragments_fts(rowid, content) VALUES (new.id, new.content);
END;
`

// SQLiteStore is the fragment database. Search only reads from it; the
// write methods serve the indexer and tests.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
	logger *slog.Logger
}

var (
	_ FragmentReader  = (*SQLiteStore)(nil)
	_ EmbeddingReader = (*SQLiteStore)(nil)
	_ FragmentSource  = (*SQLiteStore)(nil)
)

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*sqliteOptions)

type sqliteOptions struct {
	cacheMB int
	logger  *slog.Logger
}

// WithCacheMB sets the SQLite page cache size.
func WithCacheMB(mb int) SQLiteOption {
	return func(o *sqliteOptions) {
		if mb > 0 {
			o.cacheMB = mb
		}
	}
}

// WithLogger sets the logger used for skipped rows and similar warnings.
func WithLogger(l *slog.Logger) SQLiteOption {
	return func(o *sqliteOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// OpenSQLite opens (creating if needed) the fragment database at path.
// An empty path opens a private in-memory database.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	o := sqliteOptions{cacheMB: 64, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN parameters, so pragmas are set explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", o.cacheMB*1024),
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path, logger: o.logger}, nil
}

// Path returns the database path, empty for in-memory stores.
func (s *SQLiteStore) Path() string {
	return s.path
}

// DB exposes the handle so the FTS5 index can share the connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// GetFragments resolves ids with a single IN query.
func (s *SQLiteStore) GetFragments(ctx context.Context, ids []int64) ([]*Fragment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	placeholders, args := inClause(ids)
	query := fmt.Sprintf(`SELECT id, content, source_file, start_line, end_line
		FROM fragments WHERE id IN (%s)`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fragments: %w", err)
	}
	defer rows.Close()

	out := make([]*Fragment, 0, len(ids))
	for rows.Next() {
		f, err := scanFragment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// AllEmbeddings loads every non-null embedding ordered by fragment id.
// Blobs with a length that is not a multiple of 4 are skipped.
func (s *SQLiteStore) AllEmbeddings(ctx context.Context) ([]VectorEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM fragments WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var entries []VectorEntry
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			s.logger.Warn("embedding_skipped",
				slog.Int64("fragment_id", id),
				slog.String("error", err.Error()))
			continue
		}
		entries = append(entries, VectorEntry{FragmentID: id, Embedding: vec})
	}
	return entries, rows.Err()
}

// ForEachFragment calls fn for every fragment in id order. Returning an
// error from fn stops the iteration.
func (s *SQLiteStore) ForEachFragment(ctx context.Context, fn func(*Fragment) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, source_file, start_line, end_line FROM fragments ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to query fragments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFragment(rows)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return rows.Err()
}

// InsertFragment stores f and returns its id. A zero f.ID lets SQLite
// assign one.
func (s *SQLiteStore) InsertFragment(ctx context.Context, f *Fragment) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	var id any
	if f.ID != 0 {
		id = f.ID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO fragments (id, content, source_file, start_line, end_line) VALUES (?, ?, ?, ?, ?)`,
		id, f.Content, f.SourceFile, f.StartLine, f.EndLine)
	if err != nil {
		return 0, fmt.Errorf("failed to insert fragment: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read fragment id: %w", err)
	}
	f.ID = newID
	return newID, nil
}

// UpdateFragment rewrites the text and location of an existing fragment.
// The id and embedding are kept.
func (s *SQLiteStore) UpdateFragment(ctx context.Context, f *Fragment) error {
	if err := f.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE fragments SET content = ?, source_file = ?, start_line = ?, end_line = ? WHERE id = ?`,
		f.Content, f.SourceFile, f.StartLine, f.EndLine, f.ID)
	if err != nil {
		return fmt.Errorf("failed to update fragment %d: %w", f.ID, err)
	}
	return requireAffected(res, f.ID)
}

// SetEmbedding stores vec for fragment id.
func (s *SQLiteStore) SetEmbedding(ctx context.Context, id int64, vec []float32) error {
	return s.writeEmbedding(ctx, id, EncodeEmbedding(vec))
}

// ClearEmbedding removes the embedding of fragment id.
func (s *SQLiteStore) ClearEmbedding(ctx context.Context, id int64) error {
	return s.writeEmbedding(ctx, id, nil)
}

func (s *SQLiteStore) writeEmbedding(ctx context.Context, id int64, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var value any
	if blob != nil {
		value = blob
	}
	res, err := s.db.ExecContext(ctx, `UPDATE fragments SET embedding = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("failed to write embedding for fragment %d: %w", id, err)
	}
	return requireAffected(res, id)
}

// DeleteFragments removes fragments by id. Unknown ids are ignored.
func (s *SQLiteStore) DeleteFragments(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	placeholders, args := inClause(ids)
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM fragments WHERE id IN (%s)`, placeholders), args...); err != nil {
		return fmt.Errorf("failed to delete fragments: %w", err)
	}
	return nil
}

// Stats counts fragments and embeddings by dimension.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	st := &Stats{Dimensions: make(map[int]int)}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fragments`).Scan(&st.Fragments); err != nil {
		return nil, fmt.Errorf("failed to count fragments: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT length(embedding), COUNT(*)
		FROM fragments WHERE embedding IS NOT NULL GROUP BY length(embedding)`)
	if err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var size, count int
		if err := rows.Scan(&size, &count); err != nil {
			return nil, fmt.Errorf("failed to scan embedding stats: %w", err)
		}
		if size%float32Size != 0 {
			st.Malformed += count
			continue
		}
		st.Embedded += count
		st.Dimensions[size/float32Size] += count
	}
	return st, rows.Err()
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFragment(r rowScanner) (*Fragment, error) {
	var f Fragment
	if err := r.Scan(&f.ID, &f.Content, &f.SourceFile, &f.StartLine, &f.EndLine); err != nil {
		return nil, fmt.Errorf("failed to scan fragment: %w", err)
	}
	return &f, nil
}

func inClause(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// isFTSSyntaxError reports whether err came from the FTS5 query parser.
func isFTSSyntaxError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "fts5:") || strings.Contains(msg, "syntax error") ||
		strings.Contains(msg, "unterminated string")
}
