package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// RotatingWriter appends to a log file and shifts it to numbered
// generations once it grows past maxSize:
//
//	amanrecall.log -> amanrecall.log.1 -> ... -> amanrecall.log.<maxFiles>
//
// The oldest generation is deleted.
type RotatingWriter struct {
	path     string
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	written int64
}

// NewRotatingWriter opens (or creates) path for appending.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if maxFiles <= 0 {
		maxFiles = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:     path,
		maxSize:  int64(maxSizeMB) << 20,
		maxFiles: maxFiles,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer. It rotates first when p would push the file
// past the size limit; a failed rotation keeps writing to the current file
// if it is still open.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.written+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil && w.file == nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

// Sync flushes the file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the file. Further writes return os.ErrClosed.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.written = info.Size()
	return nil
}

func (w *RotatingWriter) generation(n int) string {
	return w.path + "." + strconv.Itoa(n)
}

// must hold w.mu
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	w.file = nil

	if err := w.shift(); err != nil {
		// Keep logging to the unrotated file.
		if openErr := w.open(); openErr != nil {
			return errors.Join(err, openErr)
		}
		return err
	}
	return w.open()
}

func (w *RotatingWriter) shift() error {
	_ = os.Remove(w.generation(w.maxFiles))
	for n := w.maxFiles - 1; n >= 1; n-- {
		if err := os.Rename(w.generation(n), w.generation(n+1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to shift %s: %w", w.generation(n), err)
		}
	}
	if err := os.Rename(w.path, w.generation(1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return nil
}
