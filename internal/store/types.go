// Package store owns the fragment database: the fragments table, its
// embedding column and the full-text indexes built over it.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Fragment is a contiguous excerpt of a source file.
type Fragment struct {
	ID         int64  `json:"id"`
	Content    string `json:"content"`
	SourceFile string `json:"source_file"`
	// StartLine and EndLine are 1-based and inclusive.
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// Validate checks the line range invariant.
func (f *Fragment) Validate() error {
	if f.StartLine < 1 || f.EndLine < f.StartLine {
		return fmt.Errorf("%w: %d-%d", ErrInvalidLineRange, f.StartLine, f.EndLine)
	}
	return nil
}

// VectorEntry pairs a fragment id with its embedding.
type VectorEntry struct {
	FragmentID int64
	Embedding  []float32
}

// Stats summarizes the store contents.
type Stats struct {
	Fragments int `json:"fragments"`
	Embedded  int `json:"embedded"`
	// Dimensions counts embeddings by length. More than one key means the
	// corpus mixes embedding models.
	Dimensions map[int]int `json:"dimensions"`
	// Malformed counts embedding blobs whose size is not a multiple of 4.
	Malformed int `json:"malformed"`
}

// FragmentReader resolves fragment ids in one batch. Missing ids are
// simply absent from the result; order is unspecified.
type FragmentReader interface {
	GetFragments(ctx context.Context, ids []int64) ([]*Fragment, error)
}

// EmbeddingReader loads every stored embedding.
type EmbeddingReader interface {
	AllEmbeddings(ctx context.Context) ([]VectorEntry, error)
}

// FragmentSource streams every fragment. Used to (re)build external indexes.
type FragmentSource interface {
	ForEachFragment(ctx context.Context, fn func(*Fragment) error) error
}

// LexicalIndex answers phrase queries with fragment ids, most relevant first.
type LexicalIndex interface {
	// Query treats text as a literal phrase.
	Query(ctx context.Context, text string, limit int) ([]int64, error)
	Close() error
}

var (
	// ErrClosed is returned by operations on a closed store or index.
	ErrClosed = errors.New("store is closed")

	// ErrQuerySyntax wraps query-language errors from a lexical backend.
	ErrQuerySyntax = errors.New("lexical query syntax error")

	// ErrInvalidLineRange rejects fragments with StartLine > EndLine or StartLine < 1.
	ErrInvalidLineRange = errors.New("invalid line range")

	// ErrNotFound is returned when a write targets a fragment that does not exist.
	ErrNotFound = errors.New("fragment not found")
)
