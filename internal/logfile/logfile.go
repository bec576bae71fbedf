// Package logfile provides a size-capped append-only log file.
package logfile

import (
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	MaxSizeBytes  = 6 * 1024 * 1024
	KeepSizeBytes = 5 * 1024 * 1024
)

// Writer appends to a file and, once it grows past its maximum size, keeps
// only the newest bytes.
type Writer struct {
	file    *os.File
	mu      sync.Mutex
	maxSize int64
	keep    int64
}

// Open opens or creates the log file at path with the default limits.
func Open(path string) (*Writer, error) {
	return OpenWithLimits(path, MaxSizeBytes, KeepSizeBytes)
}

// OpenWithLimits opens the log file with explicit limits; keep must be
// smaller than maxSize.
func OpenWithLimits(path string, maxSize, keep int64) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w := &Writer{file: file, maxSize: maxSize, keep: keep}
	if err := w.truncateIfNeeded(); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.truncateIfNeeded(); err != nil {
		return n, err
	}
	return n, nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func (w *Writer) truncateIfNeeded() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= w.maxSize {
		return nil
	}

	buf := make([]byte, w.keep)
	n, err := w.file.ReadAt(buf, size-w.keep)
	if err != nil && err != io.EOF {
		return err
	}
	buf = buf[:n]

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	_, err = w.file.Seek(0, io.SeekEnd)
	return err
}
