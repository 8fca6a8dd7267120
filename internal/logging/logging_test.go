package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()

	assert.Equal(t, "amanrecall.log", filepath.Base(path))
	assert.Contains(t, path, filepath.Join(".amanrecall", "logs"))
}

func TestConfigs(t *testing.T) {
	def := DefaultConfig()
	assert.Equal(t, "warn", def.Level)
	assert.Empty(t, def.FilePath)
	assert.True(t, def.WriteToStderr)

	debug := DebugConfig()
	assert.Equal(t, "debug", debug.Level)
	assert.Equal(t, DefaultLogPath(), debug.FilePath)

	serve := ServeConfig("info")
	assert.False(t, serve.WriteToStderr, "serve mode must never write to stderr")
	assert.NotEmpty(t, serve.FilePath)
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a file-only config in a temp dir
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")
	cfg := Config{Level: "debug", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 2}

	// When: logging a record
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Warn("lexical_query_failed", slog.String("query", "\"broken"))
	cleanup()

	// Then: the record is JSON in the file
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"lexical_query_failed"`)
	assert.Contains(t, string(data), `"level":"WARN"`)
}

func TestSetup_NoOutputsDiscards(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	defer cleanup()

	assert.NotPanics(t, func() { logger.Info("dropped") })
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestRotatingWriter_Rotation(t *testing.T) {
	// Given: a writer that rotates on any write (0 MB limit)
	logPath := filepath.Join(t.TempDir(), "rotate.log")
	w, err := NewRotatingWriter(logPath, 0, 3)
	require.NoError(t, err)
	defer w.Close()

	// When: writing twice
	_, err = w.Write(bytes.Repeat([]byte("x"), 2048))
	require.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte("y"), 2048))
	require.NoError(t, err)

	// Then: the previous content moved to .1
	current, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(current), "y"))

	rotated, err := os.ReadFile(logPath + ".1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(rotated), "x"))
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "maxfiles.log")
	w, err := NewRotatingWriter(logPath, 0, 2)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 6; i++ {
		_, _ = w.Write([]byte("line\n"))
	}

	assert.FileExists(t, logPath+".1")
	assert.FileExists(t, logPath+".2")
	assert.NoFileExists(t, logPath+".3")
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "closed.log"), 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, w.Close())
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = w.Write([]byte("entry\n"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Sync())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 400, strings.Count(string(data), "entry\n"))
}
