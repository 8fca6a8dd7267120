package store

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *SQLiteStore, frags ...*Fragment) {
	t.Helper()
	for _, f := range frags {
		_, err := s.InsertFragment(context.Background(), f)
		require.NoError(t, err)
	}
}

func ids(frags []*Fragment) []int64 {
	out := make([]int64, len(frags))
	for i, f := range frags {
		out[i] = f.ID
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestOpenSQLite_OnDiskReopen(t *testing.T) {
	// Given: a store on disk with one fragment
	path := filepath.Join(t.TempDir(), "nested", "recall.db")
	s, err := OpenSQLite(path, WithCacheMB(8))
	require.NoError(t, err)
	id, err := s.InsertFragment(context.Background(), &Fragment{
		Content: "tea ceremony notes", SourceFile: "notes/tea.md", StartLine: 1, EndLine: 3,
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: reopening
	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s2.Close()

	// Then: the fragment survived
	got, err := s2.GetFragments(context.Background(), []int64{id})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "notes/tea.md", got[0].SourceFile)
	assert.Equal(t, path, s2.Path())
}

func TestInsertFragment_AssignsAndKeepsIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	explicit := &Fragment{ID: 10, Content: "a", SourceFile: "a.md", StartLine: 1, EndLine: 1}
	auto := &Fragment{Content: "b", SourceFile: "b.md", StartLine: 2, EndLine: 4}

	id1, err := s.InsertFragment(ctx, explicit)
	require.NoError(t, err)
	id2, err := s.InsertFragment(ctx, auto)
	require.NoError(t, err)

	assert.Equal(t, int64(10), id1)
	assert.Equal(t, int64(11), id2)
	assert.Equal(t, id2, auto.ID)
}

func TestInsertFragment_RejectsBadRange(t *testing.T) {
	s := newTestStore(t)

	_, err := s.InsertFragment(context.Background(), &Fragment{Content: "x", SourceFile: "x", StartLine: 5, EndLine: 4})

	assert.ErrorIs(t, err, ErrInvalidLineRange)
}

func TestGetFragments_DropsMissingIDs(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		&Fragment{ID: 10, Content: "ten", SourceFile: "a.md", StartLine: 1, EndLine: 2},
		&Fragment{ID: 20, Content: "twenty", SourceFile: "b.md", StartLine: 3, EndLine: 9},
	)

	got, err := s.GetFragments(context.Background(), []int64{20, 99, 10})

	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, ids(got))
}

func TestGetFragments_EmptyInput(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetFragments(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAllEmbeddings_SkipsNullAndMalformed(t *testing.T) {
	// Given: one good embedding, one missing, one malformed blob
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s,
		&Fragment{ID: 1, Content: "one", SourceFile: "a", StartLine: 1, EndLine: 1},
		&Fragment{ID: 2, Content: "two", SourceFile: "a", StartLine: 2, EndLine: 2},
		&Fragment{ID: 3, Content: "three", SourceFile: "a", StartLine: 3, EndLine: 3},
	)
	require.NoError(t, s.SetEmbedding(ctx, 1, []float32{1, 0, 0.5}))
	_, err := s.DB().Exec(`UPDATE fragments SET embedding = ? WHERE id = 3`, []byte{1, 2, 3})
	require.NoError(t, err)

	// When: loading all embeddings
	entries, err := s.AllEmbeddings(ctx)

	// Then: only the well-formed one is returned
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].FragmentID)
	assert.Equal(t, []float32{1, 0, 0.5}, entries[0].Embedding)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Fragments)
	assert.Equal(t, 1, st.Embedded)
	assert.Equal(t, 1, st.Malformed)
	assert.Equal(t, map[int]int{3: 1}, st.Dimensions)
}

func TestClearEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, &Fragment{ID: 1, Content: "one", SourceFile: "a", StartLine: 1, EndLine: 1})
	require.NoError(t, s.SetEmbedding(ctx, 1, []float32{1}))

	require.NoError(t, s.ClearEmbedding(ctx, 1))

	entries, err := s.AllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWrites_UnknownIDReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SetEmbedding(ctx, 42, []float32{1}), ErrNotFound)
	assert.ErrorIs(t, s.UpdateFragment(ctx, &Fragment{ID: 42, Content: "x", SourceFile: "x", StartLine: 1, EndLine: 1}), ErrNotFound)
}

func TestUpdateAndDelete_KeepFTSInSync(t *testing.T) {
	// Given: an indexed fragment
	s := newTestStore(t)
	ctx := context.Background()
	fts := NewFTSIndex(s)
	seed(t, s, &Fragment{ID: 7, Content: "morning pages ritual", SourceFile: "j.md", StartLine: 1, EndLine: 1})

	// When: its content changes
	require.NoError(t, s.UpdateFragment(ctx, &Fragment{ID: 7, Content: "evening review ritual", SourceFile: "j.md", StartLine: 1, EndLine: 2}))

	// Then: the old phrase no longer matches and the new one does
	got, err := fts.Query(ctx, "morning pages", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = fts.Query(ctx, "evening review", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, got)

	// When: it is deleted
	require.NoError(t, s.DeleteFragments(ctx, []int64{7, 1000}))

	// Then: nothing matches
	got, err = fts.Query(ctx, "evening review", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestForEachFragment_StopsOnError(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		&Fragment{ID: 1, Content: "a", SourceFile: "a", StartLine: 1, EndLine: 1},
		&Fragment{ID: 2, Content: "b", SourceFile: "a", StartLine: 1, EndLine: 1},
	)
	stop := errors.New("stop")

	var seen []int64
	err := s.ForEachFragment(context.Background(), func(f *Fragment) error {
		seen = append(seen, f.ID)
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []int64{1}, seen)
}

func TestClosedStore(t *testing.T) {
	s, err := OpenSQLite("")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.GetFragments(context.Background(), []int64{1})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.AllEmbeddings(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = NewFTSIndex(s).Query(context.Background(), "x", 5)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEmbeddingCodec(t *testing.T) {
	blob := EncodeEmbedding([]float32{1, -0.5})

	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xbf}, blob)

	v, err := DecodeEmbedding(blob)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -0.5}, v)

	_, err = DecodeEmbedding([]byte{1, 2})
	assert.Error(t, err)
}
