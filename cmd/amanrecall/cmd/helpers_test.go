package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrecall/internal/embed"
	"github.com/Aman-CERP/amanrecall/internal/store"
)

// isolate keeps user config, .env values and log files out of the test and
// selects the offline embedder.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("AMANRECALL_EMBEDDINGS_PROVIDER", "static")
	t.Setenv("AMANRECALL_SEMANTIC_INDEX", "linear")
	t.Setenv("AMANRECALL_LEXICAL_BACKEND", "fts5")
}

// seedStore writes fragments, embedded with the static embedder, to a new
// on-disk database and returns its path.
func seedStore(t *testing.T, frags ...store.Fragment) string {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "recall.db")
	st, err := store.OpenSQLite(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	embedder := embed.NewStaticEmbedder(0)
	for i := range frags {
		f := frags[i]
		id, err := st.InsertFragment(ctx, &f)
		require.NoError(t, err)
		vec, err := embedder.Embed(ctx, f.Content)
		require.NoError(t, err)
		require.NoError(t, st.SetEmbedding(ctx, id, vec))
	}
	return path
}

func gardenCorpus(t *testing.T) string {
	return seedStore(t,
		store.Fragment{Content: "Water the tomatoes every morning.\nMulch keeps the soil damp.", SourceFile: "notes/garden.md", StartLine: 1, EndLine: 2},
		store.Fragment{Content: "Slice the bread thinly and toast it.", SourceFile: "notes/recipes.md", StartLine: 5, EndLine: 5},
	)
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
