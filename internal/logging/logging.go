package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the size at which the file rotates.
	MaxSizeMB int
	// MaxFiles is the number of rotated files kept.
	MaxFiles int
	// WriteToStderr tees log records to stderr.
	WriteToStderr bool
}

// DefaultConfig logs warnings and above to stderr only.
func DefaultConfig() Config {
	return Config{
		Level:         "warn",
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig logs everything to the default log file and stderr.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	cfg.FilePath = DefaultLogPath()
	return cfg
}

// ServeConfig logs to file only. The MCP stdio transport owns stdout and
// clients surface stderr noise as connection errors.
func ServeConfig(level string) Config {
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.FilePath = DefaultLogPath()
	cfg.WriteToStderr = false
	return cfg
}

// Setup builds a JSON slog.Logger from cfg and returns a cleanup func that
// flushes and closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var writers []io.Writer
	cleanup := func() {}

	if cfg.FilePath != "" {
		rw, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, rw)
		cleanup = func() {
			_ = rw.Sync()
			_ = rw.Close()
		}
	}
	if cfg.WriteToStderr {
		writers = append(writers, os.Stderr)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})
	return slog.New(handler), cleanup, nil
}

// SetupDefault installs the logger built from cfg as slog's default.
func SetupDefault(cfg Config) (func(), error) {
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultLogDir returns ~/.amanrecall/logs, or a temp dir when HOME is unset.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanrecall", "logs")
	}
	return filepath.Join(home, ".amanrecall", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "amanrecall.log")
}
