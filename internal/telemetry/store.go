package telemetry

import (
	"context"
	"database/sql"
	"fmt"
)

// maxZeroResultRows bounds the persisted zero-result history.
const maxZeroResultRows = 100

// Store persists flushed query metrics.
type Store interface {
	// Save applies b atomically.
	Save(ctx context.Context, b Batch) error

	ModeCounts(ctx context.Context, from, to string) (map[QueryMode]int64, error)
	TopTerms(ctx context.Context, limit int) ([]TermCount, error)
	ZeroResultQueries(ctx context.Context, limit int) ([]string, error)
	LatencyCounts(ctx context.Context, from, to string) (map[LatencyBucket]int64, error)
}

// SQLiteStore keeps query metrics in tables next to the fragments table.
// It shares the caller's *sql.DB and never closes it.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the telemetry tables if needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := initSchema(ctx, db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS query_mode_stats (
		date TEXT NOT NULL,
		mode TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, mode)
	);

	CREATE TABLE IF NOT EXISTS query_terms (
		term TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// Save adds the batch counts to the stored totals in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, b Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for mode, n := range b.Modes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_mode_stats (date, mode, count) VALUES (?, ?, ?)
			ON CONFLICT(date, mode) DO UPDATE SET count = count + excluded.count`,
			b.Date, string(mode), n); err != nil {
			return fmt.Errorf("save mode count: %w", err)
		}
	}

	for term, n := range b.Terms {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_terms (term, count, last_seen) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(term) DO UPDATE SET
				count = count + excluded.count,
				last_seen = CURRENT_TIMESTAMP`,
			term, n); err != nil {
			return fmt.Errorf("save term count: %w", err)
		}
	}

	for bucket, n := range b.Latencies {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_latency_stats (date, bucket, count) VALUES (?, ?, ?)
			ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count`,
			b.Date, string(bucket), n); err != nil {
			return fmt.Errorf("save latency count: %w", err)
		}
	}

	if len(b.ZeroResults) > 0 {
		for _, z := range b.ZeroResults {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)`,
				z.Query, z.At.UTC()); err != nil {
				return fmt.Errorf("save zero-result query: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM zero_result_queries
			WHERE id NOT IN (SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)`,
			maxZeroResultRows); err != nil {
			return fmt.Errorf("trim zero-result queries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ModeCounts sums mode counts for dates in [from, to].
func (s *SQLiteStore) ModeCounts(ctx context.Context, from, to string) (map[QueryMode]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mode, SUM(count) FROM query_mode_stats
		WHERE date >= ? AND date <= ?
		GROUP BY mode`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query mode counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[QueryMode]int64)
	for rows.Next() {
		var mode string
		var n int64
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[QueryMode(mode)] = n
	}
	return counts, rows.Err()
}

// TopTerms returns the most searched terms.
func (s *SQLiteStore) TopTerms(ctx context.Context, limit int) ([]TermCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term, count FROM query_terms ORDER BY count DESC, term ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// ZeroResultQueries returns recent queries that found nothing, newest first.
func (s *SQLiteStore) ZeroResultQueries(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// LatencyCounts sums the latency histogram for dates in [from, to].
func (s *SQLiteStore) LatencyCounts(ctx context.Context, from, to string) (map[LatencyBucket]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket, SUM(count) FROM query_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY bucket`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[LatencyBucket]int64)
	for rows.Next() {
		var bucket string
		var n int64
		if err := rows.Scan(&bucket, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[LatencyBucket(bucket)] = n
	}
	return counts, rows.Err()
}
