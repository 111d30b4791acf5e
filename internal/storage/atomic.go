package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrWriterClosed is returned when an AtomicWriter is used after Commit or Abort.
var ErrWriterClosed = errors.New("atomic writer already closed")

// AtomicWriter writes a file through a temp file in the same directory and
// renames it into place on Commit. Readers see the old file or the new one,
// never a partial write. Exports and the config file go through it.
type AtomicWriter struct {
	target string
	perm   os.FileMode
	file   *os.File
	buf    *bufio.Writer
	closed bool
}

var _ io.Writer = (*AtomicWriter)(nil)

// NewAtomicWriter creates the temp file next to target, creating parent
// directories as needed.
func NewAtomicWriter(target string, perm os.FileMode) (*AtomicWriter, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(target)+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	return &AtomicWriter{
		target: target,
		perm:   perm,
		file:   f,
		buf:    bufio.NewWriter(f),
	}, nil
}

func (w *AtomicWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	return w.buf.Write(p)
}

// Commit flushes, syncs and renames the temp file onto the target.
// On failure the temp file is removed and the target is left untouched.
func (w *AtomicWriter) Commit() error {
	if w.closed {
		return ErrWriterClosed
	}
	w.closed = true

	steps := []struct {
		what string
		fn   func() error
	}{
		{"flush", w.buf.Flush},
		{"set file mode of", func() error { return w.file.Chmod(w.perm) }},
		{"sync", w.file.Sync},
		{"close", w.file.Close},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			w.file.Close()
			os.Remove(w.file.Name())
			return fmt.Errorf("failed to %s temp file: %w", step.what, err)
		}
	}

	if err := os.Rename(w.file.Name(), w.target); err != nil {
		os.Remove(w.file.Name())
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Abort discards the write. It is a no-op after Commit, so callers can
// defer it right after NewAtomicWriter.
func (w *AtomicWriter) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.file.Close()
	if err := os.Remove(w.file.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp file: %w", err)
	}
	return nil
}

// AtomicWriteFile writes data to path atomically with the given mode.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	w, err := NewAtomicWriter(path, perm)
	if err != nil {
		return err
	}
	defer w.Abort()

	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Commit()
}
